package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/plsync/internal/shared"
	"google.golang.org/genai"
)

const (
	defaultOracleModel       = "gemini-2.0-flash"
	defaultOracleMaxRequests = 50
)

var errOracleEmpty = errors.New("oracle returned an empty answer")

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeminiGenerator is a [Generator] backed by the Gemini API.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a Gemini client from the [credentials.gemini] config section.
func NewGeminiGenerator(ctx context.Context, cfg shared.GeminiConfig) (*GeminiGenerator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: gemini api_key is required for the oracle", shared.ErrMissingCredentials)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	model := cfg.Model
	if model == "" {
		model = defaultOracleModel
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate asks the model for a JSON answer and returns the concatenated text parts.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part != nil {
				sb.WriteString(part.Text)
			}
		}
	}
	return sb.String(), nil
}

// oracleAnswer is the JSON object the oracle is asked to return.
type oracleAnswer struct {
	CandidateID string  `json:"candidate_id"`
	Confidence  float64 `json:"confidence"`
	Notes       string  `json:"notes"`
}

// OracleReviewer asks a language model to pick among ranked candidates.
//
// Every failure degrades to [NoSuggestion]; the oracle never blocks a run.
type OracleReviewer struct {
	gen         Generator
	maxRequests int64
	requests    atomic.Int64
	logger      *log.Logger
}

// NewOracleReviewer creates an oracle allowing at most maxRequests calls per run.
func NewOracleReviewer(gen Generator, maxRequests int, logger *log.Logger) *OracleReviewer {
	if maxRequests <= 0 {
		maxRequests = defaultOracleMaxRequests
	}
	if logger == nil {
		logger = shared.NewLogger(nil)
	}
	return &OracleReviewer{
		gen:         gen,
		maxRequests: int64(maxRequests),
		logger:      shared.WithLogger(logger, "component", "oracle"),
	}
}

func (o *OracleReviewer) Name() string { return "oracle" }

// Requests returns the number of model calls made.
func (o *OracleReviewer) Requests() int { return int(o.requests.Load()) }

func (o *OracleReviewer) Review(ctx context.Context, req ReviewRequest) (Verdict, error) {
	if len(req.Candidates) == 0 {
		return Verdict{Action: NoSuggestion}, nil
	}
	if n := o.requests.Add(1); n > o.maxRequests {
		o.requests.Add(-1)
		o.logger.Debug("oracle request cap reached", "max", o.maxRequests)
		return Verdict{Action: NoSuggestion}, nil
	}

	text, err := o.gen.Generate(ctx, buildPrompt(req))
	if err != nil {
		o.logger.Warn("oracle request failed", "artist", req.Entry.Artist, "title", req.Entry.Title, "error", err)
		return Verdict{Action: NoSuggestion}, nil
	}

	answer, err := parseAnswer(text)
	if err != nil {
		o.logger.Warn("oracle answer unreadable", "error", err, "answer", text)
		return Verdict{Action: NoSuggestion}, nil
	}
	if answer.CandidateID == "" {
		return Verdict{Action: NoSuggestion, Confidence: answer.Confidence, Notes: answer.Notes}, nil
	}

	return Verdict{
		Action:      Accept,
		CandidateID: answer.CandidateID,
		Confidence:  answer.Confidence,
		Notes:       answer.Notes,
	}, nil
}

func buildPrompt(req ReviewRequest) string {
	var b strings.Builder
	b.WriteString("You match tracks from a local playlist to tracks in a streaming catalog.\n")
	b.WriteString("Pick the candidate that is the same recording as the local track, or none.\n")
	b.WriteString("Prefer the original studio version unless the local track names a live, acoustic or remix version.\n")
	b.WriteString(`Answer with JSON only: {"candidate_id": "<id or empty>", "confidence": <0..1>, "notes": "<short reason>"}` + "\n\n")

	fmt.Fprintf(&b, "Local track:\n  artist: %q\n  title: %q\n", req.Entry.Artist, req.Entry.Title)
	if req.Entry.Album != "" {
		fmt.Fprintf(&b, "  album: %q\n", req.Entry.Album)
	}
	if req.Entry.DurationSec > 0 {
		fmt.Fprintf(&b, "  duration: %s\n", shared.FormatDuration(req.Entry.DurationSec))
	}
	fmt.Fprintf(&b, "  normalized: %q by %q\n", req.Key.Title, req.Key.Artist)
	if len(req.Key.Featuring) > 0 {
		fmt.Fprintf(&b, "  featuring: %s\n", strings.Join(req.Key.Featuring, ", "))
	}

	b.WriteString("\nCandidates (best first):\n")
	for i, c := range req.Candidates {
		fmt.Fprintf(&b, "%d. id=%s artist=%q title=%q", i+1, c.ID, c.ArtistLine(), c.Title)
		if c.Album != "" {
			fmt.Fprintf(&b, " album=%q", c.Album)
		}
		fmt.Fprintf(&b, " duration=%s score=%.1f\n", shared.FormatDuration(c.DurationSec), c.Score)
	}
	return b.String()
}

// parseAnswer reads the oracle JSON, tolerating markdown code fences around it.
func parseAnswer(text string) (oracleAnswer, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)
	if text == "" {
		return oracleAnswer{}, errOracleEmpty
	}

	var answer oracleAnswer
	if err := json.Unmarshal([]byte(text), &answer); err != nil {
		return oracleAnswer{}, fmt.Errorf("failed to decode oracle answer: %w", err)
	}
	if answer.Confidence < 0 || answer.Confidence > 1 {
		return oracleAnswer{}, fmt.Errorf("confidence %.2f out of range", answer.Confidence)
	}
	answer.CandidateID = strings.TrimSpace(answer.CandidateID)
	return answer, nil
}
