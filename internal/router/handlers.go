package router

import (
	"fmt"
	"strings"

	"classhub/internal/registry"
	"classhub/pkg/types"
)

const (
	// focusInterventionThreshold is the focus score below which a detected
	// distraction earns the sender an intervention suggestion.
	focusInterventionThreshold = 0.3
	distractionDetected        = "distraction_detected"

	// hintAfterSeconds is how long a struggling student stays on one
	// homework step before a hint is offered.
	hintAfterSeconds = 300
)

func (r *Router) handleJoinSession(conn *registry.Connection, data types.Payload) error {
	sessionID, ok := data.String("sessionId")
	if !ok || sessionID == "" {
		return ErrMissingSessionID
	}

	// Unknown or non-string session types leave the connection untyped.
	sessionType, err := types.ParseSessionType(data["sessionType"])
	if err != nil {
		sessionType = types.SessionTypeNone
	}
	if studentID, ok := data.String("studentId"); ok {
		conn.StudentID = studentID
	}

	previous, err := r.registry.Join(sessionID, conn.ID, sessionType)
	if err != nil {
		return err
	}
	if previous != "" {
		r.record(conn, types.ActivityLeft, previous, types.SessionTypeNone)
	}
	r.record(conn, types.ActivityJoined, sessionID, sessionType)

	r.engine.SendDirect(conn.ID, types.NewOutbound(types.MessageTypeSessionJoined, types.Payload{
		"sessionId":    sessionID,
		"sessionType":  string(sessionType),
		"studentId":    conn.StudentID,
		"participants": len(r.registry.Members(sessionID)),
	}))
	r.engine.BroadcastSession(sessionID, types.NewOutbound(types.MessageTypeParticipantJoined, types.Payload{
		"clientId":    conn.ID,
		"studentId":   conn.StudentID,
		"sessionType": string(sessionType),
	}), conn.ID)

	r.logger.Debug("connection joined session",
		"connection_id", conn.ID,
		"session_id", sessionID,
		"session_type", sessionType)
	return nil
}

func (r *Router) handleLeaveSession(conn *registry.Connection, _ types.Payload) error {
	if !conn.InSession() {
		return ErrNotInSession
	}

	sessionID, sessionType := conn.SessionID, conn.SessionType
	r.registry.Leave(sessionID, conn.ID)
	r.record(conn, types.ActivityLeft, sessionID, sessionType)

	r.engine.BroadcastSession(sessionID, types.NewOutbound(types.MessageTypeParticipantLeft, types.Payload{
		"clientId":  conn.ID,
		"studentId": conn.StudentID,
	}), conn.ID)
	return nil
}

func (r *Router) handlePing(conn *registry.Connection, _ types.Payload) error {
	r.engine.SendDirect(conn.ID, types.NewOutbound(types.MessageTypePong, nil))
	return nil
}

func (r *Router) handleFocusEvent(conn *registry.Connection, data types.Payload) error {
	score, hasScore := data.Number("focusScore")
	eventType, _ := data.String("eventType")

	if hasScore && score < focusInterventionThreshold && eventType == distractionDetected {
		r.engine.SendDirect(conn.ID, types.NewOutbound(types.MessageTypeInterventionSuggested, types.Payload{
			"focusScore": score,
			"message":    "Looks like your attention drifted. Want to try a quick focus exercise?",
			"suggestions": []string{
				"Take three slow, deep breaths",
				"Stand up and stretch for 30 seconds",
				"Close unrelated tabs and return to the task",
			},
		}))
	}

	update := data.Clone()
	update["clientId"] = conn.ID
	update["studentId"] = conn.StudentID
	r.engine.BroadcastSession(conn.SessionID, types.NewOutbound(types.MessageTypeFocusMetricsUpdate, update), conn.ID)
	return nil
}

func (r *Router) handleGameUpdate(conn *registry.Connection, data types.Payload) error {
	correct := data.Bool("isCorrect")
	streak, _ := data.Number("streak")

	r.engine.SendDirect(conn.ID, types.NewOutbound(types.MessageTypeGameFeedback, types.Payload{
		"isCorrect":     data["isCorrect"],
		"score":         data["score"],
		"streak":        data["streak"],
		"encouragement": encouragement(correct, int(streak)),
	}))

	// A game can run as an intervention for a separate focus session.
	if focusSessionID, ok := data.String("focusSessionId"); ok && focusSessionID != "" {
		r.engine.BroadcastSession(focusSessionID, types.NewOutbound(types.MessageTypeInterventionProgress, types.Payload{
			"clientId":      conn.ID,
			"studentId":     conn.StudentID,
			"gameSessionId": conn.SessionID,
			"isCorrect":     data["isCorrect"],
			"score":         data["score"],
			"streak":        data["streak"],
		}), conn.ID)
	}
	return nil
}

func (r *Router) handleHomeworkProgress(conn *registry.Connection, data types.Payload) error {
	if data.Bool("stepCompleted") {
		r.engine.SendDirect(conn.ID, types.NewOutbound(types.MessageTypeStepCompleted, types.Payload{
			"stepNumber": data["stepNumber"],
			"message":    "Great work! You've completed this step.",
		}))
	}

	timeOnStep, _ := data.Number("timeOnStep")
	if data.Bool("strugglingIndicator") && timeOnStep > hintAfterSeconds {
		r.engine.SendDirect(conn.ID, types.NewOutbound(types.MessageTypeHintAvailable, types.Payload{
			"stepNumber": data["stepNumber"],
			"timeOnStep": timeOnStep,
			"message":    "This step looks tricky. A hint is ready whenever you want it.",
		}))
	}
	return nil
}

func (r *Router) handleWritingUpdate(conn *registry.Connection, data types.Payload) error {
	if data.Bool("collaborative") {
		update := data.Clone()
		update["authorId"] = conn.ID
		update["studentId"] = conn.StudentID
		r.engine.BroadcastSession(conn.SessionID, types.NewOutbound(types.MessageTypeDocumentUpdated, update), conn.ID)
	}

	if data.Bool("requestFeedback") {
		content, _ := data.String("content")
		suggestions, words := writingSuggestions(content)
		r.engine.SendDirect(conn.ID, types.NewOutbound(types.MessageTypeWritingFeedback, types.Payload{
			"suggestions": suggestions,
			"wordCount":   words,
		}))
	}
	return nil
}

func encouragement(correct bool, streak int) string {
	switch {
	case correct && streak >= 3:
		return fmt.Sprintf("You're on fire! %d in a row!", streak)
	case correct:
		return "Great job! Keep it up!"
	default:
		return "Nice try! Every attempt helps you learn."
	}
}

// writingSuggestions produces canned feedback from simple text statistics.
func writingSuggestions(content string) ([]string, int) {
	words := len(strings.Fields(content))
	sentences := strings.FieldsFunc(content, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	})

	var suggestions []string
	if words < 100 {
		suggestions = append(suggestions, "Try developing your main idea with more supporting details.")
	}
	if len(sentences) > 0 && words/len(sentences) > 25 {
		suggestions = append(suggestions, "Some sentences run long; consider splitting them for clarity.")
	}
	suggestions = append(suggestions, "Check that each paragraph opens with a clear topic sentence.")
	return suggestions, words
}
