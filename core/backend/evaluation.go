package backend

import (
	"context"
	"net/http"
	"time"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// finalCodeLimit bounds the code excerpt attached to the evaluation request
// so the prompt assembled by the backend stays within model context.
const finalCodeLimit = 1000

// EvaluationRequest carries the material the backend folds into the final
// scored evaluation turn.
type EvaluationRequest struct {
	FinalCode       string
	SessionDuration time.Duration
}

// EvaluationRubric is the structure the backend is asked to score against.
// Its JSON schema is reflected and shipped with the trigger request.
type EvaluationRubric struct {
	Approach               RubricArea `json:"approach" jsonschema:"description=Problem-solving approach and methodology"`
	CodeQuality            RubricArea `json:"code_quality" jsonschema:"description=Code quality and correctness"`
	Communication          RubricArea `json:"communication" jsonschema:"description=Communication and explanation skills"`
	TechnicalUnderstanding RubricArea `json:"technical_understanding" jsonschema:"description=Complexity analysis and edge case awareness"`
	Overall                RubricArea `json:"overall" jsonschema:"description=Overall strengths and improvement areas"`
}

type RubricArea struct {
	Score    int    `json:"score" jsonschema:"minimum=1,maximum=5"`
	Feedback string `json:"feedback"`
}

type triggerEvaluationRequest struct {
	FinalCode       string            `json:"final_code,omitempty"`
	SessionDuration string            `json:"session_duration,omitempty"`
	Rubric          jsonschema.Schema `json:"rubric"`
}

// TriggerEvaluation asks the backend to generate the end-of-session
// evaluation turn. The response itself arrives over the realtime channel as
// an ordinary response; this call only starts it.
func (c *Client) TriggerEvaluation(ctx context.Context, sessionID string, request EvaluationRequest) error {
	ctx, span := tracer.Start(ctx, "trigger evaluation")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", sessionID),
		attribute.Int("request.final_code_length", len(request.FinalCode)),
	)

	finalCode := request.FinalCode
	if len(finalCode) > finalCodeLimit {
		finalCode = finalCode[:finalCodeLimit] + "..."
	}

	var duration string
	if request.SessionDuration > 0 {
		duration = request.SessionDuration.Round(time.Second).String()
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(EvaluationRubric{})

	body := triggerEvaluationRequest{
		FinalCode:       finalCode,
		SessionDuration: duration,
		Rubric:          *schema,
	}

	if err := c.do(ctx, http.MethodPost, "/sessions/"+sessionID+"/trigger-evaluation", body, nil); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}
