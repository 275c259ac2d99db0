// ABOUTME: MCP tool implementations for guided sessions and the day ledger.
// ABOUTME: Session tools drive the engine; ledger tools read and close days.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/aiform/internal/guided"
	"github.com/harperreed/aiform/internal/models"
	"github.com/harperreed/aiform/internal/plan"
	"github.com/harperreed/aiform/internal/rollover"
	"github.com/harperreed/aiform/internal/storage"
	"github.com/harperreed/aiform/internal/zone"
)

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "start_session",
		Description: "Start a guided workout from a plan payload (JSON string or plan file path)",
	}, s.handleStartSession)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "mark_set_done",
		Description: "Mark the current set as performed",
	}, s.handleMarkSetDone)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "submit_observation",
		Description: "Log the performed set with an optional note and actuals, then start the rest countdown",
	}, s.handleSubmitObservation)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "skip_rest",
		Description: "Cancel the running rest countdown and move to the next set",
	}, s.handleSkipRest)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "finish_session",
		Description: "Finish the active session now",
	}, s.handleFinishSession)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "session_state",
		Description: "Get the guided engine's current state",
	}, s.handleSessionState)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "close_day",
		Description: "Close today in the day ledger with optional calories and weight",
	}, s.handleCloseDay)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "day_status",
		Description: "Report whether a day (default today) is closed and its summary",
	}, s.handleDayStatus)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_session",
		Description: "Get a session with its set logs and observations",
	}, s.handleGetSession)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "list_sessions",
		Description: "List recent sessions, newest first",
	}, s.handleListSessions)

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "set_timezone",
		Description: "Select the IANA time zone used for day keys",
	}, s.handleSetTimezone)
}

// Tool input/output types

type emptyInput struct{}

type startSessionInput struct {
	PlanJSON string `json:"plan_json,omitempty" jsonschema:"Plan payload as a JSON string with schemaVersion 1"`
	PlanFile string `json:"plan_file,omitempty" jsonschema:"Path to a JSON or YAML plan file"`
}

type submitObservationInput struct {
	Note           string   `json:"note,omitempty" jsonschema:"Free-text note about the set; blank means no note"`
	ActualReps     *int     `json:"actual_reps,omitempty" jsonschema:"Reps actually performed"`
	ActualWeightKg *float64 `json:"actual_weight_kg,omitempty" jsonschema:"Weight actually lifted in kg"`
}

type stateOutput struct {
	Phase            string  `json:"phase"`
	SessionID        string  `json:"session_id,omitempty"`
	ExerciseID       string  `json:"exercise_id,omitempty"`
	ExerciseName     string  `json:"exercise_name,omitempty"`
	SetIndex         int     `json:"set_index"`
	SetCount         int     `json:"set_count"`
	TargetReps       int     `json:"target_reps"`
	TargetWeightKg   float64 `json:"target_weight_kg"`
	RestRemainingSec int     `json:"rest_remaining_sec"`
	Message          string  `json:"message"`
}

type closeDayInput struct {
	Calories *int     `json:"calories,omitempty" jsonschema:"Calories eaten today"`
	WeightKg *float64 `json:"weight_kg,omitempty" jsonschema:"Body weight in kg"`
}

type closeDayOutput struct {
	DayKey  string `json:"day_key"`
	Created bool   `json:"created"`
	Message string `json:"message"`
}

type dayStatusInput struct {
	DayKey string `json:"day_key,omitempty" jsonschema:"Day key YYYY-MM-DD, defaults to today in the selected zone"`
}

type summaryView struct {
	DayKey            string   `json:"day_key"`
	TimezoneID        string   `json:"timezone_id"`
	TrainingCompleted bool     `json:"training_completed"`
	PlansCompleted    *int     `json:"plans_completed,omitempty"`
	Calories          *int     `json:"calories,omitempty"`
	WeightKg          *float64 `json:"weight_kg,omitempty"`
	CloseReason       string   `json:"close_reason"`
	CreatedAt         string   `json:"created_at"`
}

type dayStatusOutput struct {
	DayKey  string       `json:"day_key"`
	Closed  bool         `json:"closed"`
	Summary *summaryView `json:"summary,omitempty"`
}

type getSessionInput struct {
	ID string `json:"id" jsonschema:"Session ID or prefix"`
}

type setView struct {
	ExerciseID     string   `json:"exercise_id"`
	ExerciseName   string   `json:"exercise_name"`
	SetIndex       int      `json:"set_index"`
	TargetReps     int      `json:"target_reps"`
	TargetWeightKg float64  `json:"target_weight_kg"`
	ActualReps     *int     `json:"actual_reps,omitempty"`
	ActualWeightKg *float64 `json:"actual_weight_kg,omitempty"`
	CompletedAt    string   `json:"completed_at"`
	Note           string   `json:"note,omitempty"`
}

type sessionView struct {
	ID         string    `json:"id"`
	DayKey     string    `json:"day_key"`
	TimezoneID string    `json:"timezone_id"`
	Title      string    `json:"title"`
	StartedAt  string    `json:"started_at"`
	EndedAt    string    `json:"ended_at,omitempty"`
	Active     bool      `json:"active"`
	Sets       []setView `json:"sets"`
}

type listSessionsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Max results (default 20)"`
}

type listSessionsOutput struct {
	Sessions []sessionView `json:"sessions"`
	Count    int           `json:"count"`
}

type setTimezoneInput struct {
	TimezoneID string `json:"timezone_id" jsonschema:"IANA time zone identifier such as Europe/Madrid"`
}

type timezoneOutput struct {
	TimezoneID string `json:"timezone_id"`
	DayKey     string `json:"day_key"`
	Message    string `json:"message"`
}

// Tool handlers

func (s *Server) handleStartSession(ctx context.Context, req *mcp.CallToolRequest, input startSessionInput) (*mcp.CallToolResult, stateOutput, error) {
	var (
		payload *plan.Payload
		err     error
	)
	switch {
	case input.PlanJSON != "":
		payload, err = plan.Parse([]byte(input.PlanJSON))
	case input.PlanFile != "":
		payload, err = plan.LoadFile(input.PlanFile)
	default:
		return nil, stateOutput{}, errors.New("plan_json or plan_file is required")
	}
	if err != nil {
		return nil, stateOutput{}, err
	}

	snap, err := s.engine.StartSession(ctx, &payload.DayPlan)
	if err != nil {
		return nil, stateOutput{}, fmt.Errorf("failed to start session: %w", err)
	}
	return nil, stateFromSnapshot(snap), nil
}

func (s *Server) handleMarkSetDone(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, stateOutput, error) {
	snap, err := s.engine.MarkSetDone(ctx)
	if err != nil {
		return nil, stateOutput{}, err
	}
	return nil, stateFromSnapshot(snap), nil
}

func (s *Server) handleSubmitObservation(ctx context.Context, req *mcp.CallToolRequest, input submitObservationInput) (*mcp.CallToolResult, stateOutput, error) {
	snap, err := s.engine.SubmitObservation(ctx, input.Note, guided.Actuals{
		Reps:     input.ActualReps,
		WeightKg: input.ActualWeightKg,
	})
	if err != nil {
		return nil, stateOutput{}, fmt.Errorf("failed to log set: %w", err)
	}
	return nil, stateFromSnapshot(snap), nil
}

func (s *Server) handleSkipRest(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, stateOutput, error) {
	snap, err := s.engine.SkipRest(ctx)
	if err != nil {
		return nil, stateOutput{}, err
	}
	return nil, stateFromSnapshot(snap), nil
}

func (s *Server) handleFinishSession(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, stateOutput, error) {
	snap, err := s.engine.Finish(ctx)
	if err != nil {
		return nil, stateOutput{}, fmt.Errorf("failed to finish session: %w", err)
	}
	return nil, stateFromSnapshot(snap), nil
}

func (s *Server) handleSessionState(ctx context.Context, req *mcp.CallToolRequest, _ emptyInput) (*mcp.CallToolResult, stateOutput, error) {
	snap, err := s.engine.State(ctx)
	if err != nil {
		return nil, stateOutput{}, err
	}
	return nil, stateFromSnapshot(snap), nil
}

func (s *Server) handleCloseDay(ctx context.Context, req *mcp.CallToolRequest, input closeDayInput) (*mcp.CallToolResult, closeDayOutput, error) {
	key, created, err := s.rollover.CloseToday(ctx, rollover.ManualClose{
		Calories: input.Calories,
		WeightKg: input.WeightKg,
	})
	if err != nil {
		return nil, closeDayOutput{}, err
	}

	msg := fmt.Sprintf("Closed %s", key)
	if !created {
		msg = fmt.Sprintf("%s was already closed", key)
	}
	return nil, closeDayOutput{DayKey: key, Created: created, Message: msg}, nil
}

func (s *Server) handleDayStatus(ctx context.Context, req *mcp.CallToolRequest, input dayStatusInput) (*mcp.CallToolResult, dayStatusOutput, error) {
	key := input.DayKey
	if key == "" {
		today, _, err := s.today(ctx)
		if err != nil {
			return nil, dayStatusOutput{}, err
		}
		key = today
	} else if _, err := zone.ParseDayKey(key); err != nil {
		return nil, dayStatusOutput{}, err
	}

	summary, err := s.repo.GetDailySummary(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, dayStatusOutput{DayKey: key}, nil
	}
	if err != nil {
		return nil, dayStatusOutput{}, err
	}
	view := viewSummary(summary)
	return nil, dayStatusOutput{DayKey: key, Closed: true, Summary: &view}, nil
}

func (s *Server) handleGetSession(ctx context.Context, req *mcp.CallToolRequest, input getSessionInput) (*mcp.CallToolResult, sessionView, error) {
	sess, err := s.repo.GetSession(ctx, input.ID)
	if err != nil {
		return nil, sessionView{}, fmt.Errorf("session not found: %s", input.ID)
	}
	view, err := s.sessionDetail(ctx, sess)
	if err != nil {
		return nil, sessionView{}, err
	}
	return nil, view, nil
}

func (s *Server) handleListSessions(ctx context.Context, req *mcp.CallToolRequest, input listSessionsInput) (*mcp.CallToolResult, listSessionsOutput, error) {
	if input.Limit <= 0 {
		input.Limit = 20
	}

	sessions, err := s.repo.ListSessions(ctx, input.Limit)
	if err != nil {
		return nil, listSessionsOutput{}, fmt.Errorf("failed to list sessions: %w", err)
	}

	out := listSessionsOutput{Sessions: make([]sessionView, 0, len(sessions))}
	for _, sess := range sessions {
		out.Sessions = append(out.Sessions, viewSession(sess))
	}
	out.Count = len(out.Sessions)
	return nil, out, nil
}

func (s *Server) handleSetTimezone(ctx context.Context, req *mcp.CallToolRequest, input setTimezoneInput) (*mcp.CallToolResult, timezoneOutput, error) {
	if err := s.prefs.SetSelectedTimezone(ctx, input.TimezoneID); err != nil {
		return nil, timezoneOutput{}, err
	}
	key, tz, err := s.today(ctx)
	if err != nil {
		return nil, timezoneOutput{}, err
	}
	return nil, timezoneOutput{
		TimezoneID: tz,
		DayKey:     key,
		Message:    fmt.Sprintf("Time zone set to %s (today is %s)", tz, key),
	}, nil
}

// today returns the current day key and the zone it was computed in.
func (s *Server) today(ctx context.Context) (string, string, error) {
	tz, err := s.prefs.SelectedTimezone(ctx)
	if err != nil {
		return "", "", err
	}
	key, err := zone.DayKey(s.clock.Now(), tz)
	if err != nil {
		return "", "", err
	}
	return key, tz, nil
}

func (s *Server) sessionDetail(ctx context.Context, sess *models.Session) (sessionView, error) {
	logs, err := s.repo.SetLogsBySession(ctx, sess.ID)
	if err != nil {
		return sessionView{}, fmt.Errorf("failed to load set logs: %w", err)
	}
	obs, err := s.repo.ObservationsBySession(ctx, sess.ID)
	if err != nil {
		return sessionView{}, fmt.Errorf("failed to load observations: %w", err)
	}

	notes := make(map[string]string, len(obs))
	for _, o := range obs {
		notes[fmt.Sprintf("%s/%d", o.ExerciseID, o.SetIndex)] = o.Text
	}

	view := viewSession(sess)
	for _, l := range logs {
		view.Sets = append(view.Sets, setView{
			ExerciseID:     l.ExerciseID,
			ExerciseName:   l.ExerciseName,
			SetIndex:       l.SetIndex,
			TargetReps:     l.TargetReps,
			TargetWeightKg: l.TargetWeightKg,
			ActualReps:     l.ActualReps,
			ActualWeightKg: l.ActualWeightKg,
			CompletedAt:    l.CompletedAt.Format(time.RFC3339),
			Note:           notes[fmt.Sprintf("%s/%d", l.ExerciseID, l.SetIndex)],
		})
	}
	return view, nil
}

func viewSession(sess *models.Session) sessionView {
	v := sessionView{
		ID:         sess.ID.String(),
		DayKey:     sess.DayKey,
		TimezoneID: sess.TimezoneID,
		Title:      sess.Title,
		StartedAt:  sess.StartedAt.Format(time.RFC3339),
		Active:     sess.Active(),
		Sets:       []setView{},
	}
	if sess.EndedAt != nil {
		v.EndedAt = sess.EndedAt.Format(time.RFC3339)
	}
	return v
}

func viewSummary(d *models.DailySummary) summaryView {
	return summaryView{
		DayKey:            d.DayKey,
		TimezoneID:        d.TimezoneID,
		TrainingCompleted: d.TrainingCompleted,
		PlansCompleted:    d.PlansCompleted,
		Calories:          d.Calories,
		WeightKg:          d.WeightKg,
		CloseReason:       string(d.CloseReason),
		CreatedAt:         d.CreatedAt.Format(time.RFC3339),
	}
}

func stateFromSnapshot(snap guided.Snapshot) stateOutput {
	var out stateOutput

	switch st := snap.State.(type) {
	case guided.Idle:
		out.Phase = "idle"
		out.Message = "No active session."
		return out
	case guided.Finished:
		out.Phase = "finished"
		out.SessionID = st.SessionID.String()
		out.Message = "Session finished."
		return out
	case guided.InSet:
		out.Phase = "in_set"
	case guided.AwaitingObservation:
		out.Phase = "awaiting_observation"
	case guided.Resting:
		out.Phase = "resting"
		out.RestRemainingSec = st.RemainingSec
	}

	out.SessionID = snap.SessionID.String()
	ex, _ := snap.Exercise()
	target, _ := snap.Target()
	_, setIdx, _ := guided.Position(snap.State)
	out.ExerciseID = ex.ID
	out.ExerciseName = ex.Name
	out.SetIndex = setIdx
	out.SetCount = len(ex.Sets)
	out.TargetReps = target.TargetReps
	out.TargetWeightKg = target.TargetWeightKg

	switch out.Phase {
	case "in_set":
		out.Message = fmt.Sprintf("%s set %d/%d: %d reps @ %.1f kg", ex.Name, setIdx+1, len(ex.Sets), target.TargetReps, target.TargetWeightKg)
	case "awaiting_observation":
		out.Message = fmt.Sprintf("%s set %d/%d done. Submit an observation.", ex.Name, setIdx+1, len(ex.Sets))
	case "resting":
		out.Message = fmt.Sprintf("Resting: %ds remaining", out.RestRemainingSec)
	}
	if snap.Err != nil {
		out.Message += " (error: " + snap.Err.Error() + ")"
	}
	return out
}
