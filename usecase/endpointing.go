package usecase

import (
	"strings"
	"time"

	"github.com/satriahrh/arunika/streaming/domain/entities"
	"github.com/satriahrh/arunika/streaming/domain/repositories"
)

// turnEnd tells the conversation loop what to do with a final transcription
type turnEnd struct {
	now  bool
	wait time.Duration
}

// endpoint applies an endpointing policy to the text of a final transcription.
// Without a policy every final transcription ends the turn.
func endpoint(policy entities.EndpointingConfig, text string) turnEnd {
	if policy == nil {
		return turnEnd{now: true}
	}

	switch policy.(type) {
	case *entities.PunctuationEndpointingConfig, entities.PunctuationEndpointingConfig:
		if endsSentence(text) {
			return turnEnd{now: true}
		}
	}

	cutoff := policy.TimeCutoff()
	if cutoff <= 0 {
		return turnEnd{now: true}
	}
	return turnEnd{wait: cutoff}
}

func endsSentence(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	switch text[len(text)-1] {
	case '.', '?', '!':
		return true
	default:
		return false
	}
}

// shouldInterrupt decides whether a transcription heard while the bot speaks cuts it off
func shouldInterrupt(agent entities.AgentBase, minConfidence *float64, t repositories.Transcription) bool {
	if !agent.AllowAgentToBeCutOff {
		return false
	}
	if strings.TrimSpace(t.Text) == "" {
		return false
	}
	if minConfidence != nil && t.Confidence < *minConfidence {
		return false
	}
	return true
}
