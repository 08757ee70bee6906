package score

import (
	"encoding/json"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"contentscore/internal/core/result"
)

// ErrCreditExhausted is wrapped by scorers that can tell from a typed
// provider response that no further calls will be accepted.
var ErrCreditExhausted = errors.New("scoring credit exhausted")

// Usage is the metered consumption reported for one scoring call.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Result is the parsed outcome of one scoring call. Nil scores mean the
// model response did not carry a usable value.
type Result struct {
	Cw        *float64 `json:"Cw"`
	Sd        *float64 `json:"Sd"`
	Dv        *float64 `json:"Dv"`
	Reasoning string   `json:"reasoning"`
	// Fallback is set when the response was not valid JSON and scores were
	// recovered from free text.
	Fallback bool   `json:"-"`
	Usage    *Usage `json:"-"`
}

// MaxContentChars bounds the page text sent to the model.
const MaxContentChars = 10000

var (
	jsonFence    = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	anyFence     = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	cwPattern    = regexp.MustCompile(`(?i)Cw"?[:\s]+"?(\d+)`)
	sdPattern    = regexp.MustCompile(`(?i)Sd"?[:\s]+"?(\d+)`)
	dvPattern    = regexp.MustCompile(`(?i)Dv"?[:\s]+"?(\d+)`)
	defaultScore = 50.0
)

// Parse extracts scores from a model response. It never fails: when no
// JSON object can be decoded the regex fallback is used and Fallback is set.
// Inside a decoded object each score is read on its own, so one malformed
// field leaves only that score nil.
func Parse(raw string) *Result {
	body := raw
	if m := jsonFence.FindStringSubmatch(raw); m != nil {
		body = m[1]
	} else if m := anyFence.FindStringSubmatch(raw); m != nil {
		body = m[1]
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &fields); err == nil && fields != nil {
		parsed := &Result{
			Cw: number(fields["Cw"]),
			Sd: number(fields["Sd"]),
			Dv: number(fields["Dv"]),
		}
		_ = json.Unmarshal(fields["reasoning"], &parsed.Reasoning)
		return parsed
	}

	return &Result{
		Cw:        match(cwPattern, raw),
		Sd:        match(sdPattern, raw),
		Dv:        match(dvPattern, raw),
		Reasoning: result.Truncate(raw, result.ReasoningLength),
		Fallback:  true,
	}
}

// number accepts a JSON number or a string holding one.
func number(msg json.RawMessage) *float64 {
	if len(msg) == 0 {
		return nil
	}
	var f float64
	if err := json.Unmarshal(msg, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

func match(re *regexp.Regexp, s string) *float64 {
	m := re.FindStringSubmatch(s)
	if m == nil {
		v := defaultScore
		return &v
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		v := defaultScore
		return &v
	}
	v := float64(n)
	return &v
}

// EstimateTokens approximates token usage at four characters per token, used
// when the provider does not report usage.
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		return 1
	}
	return n
}

// ClipContent applies MaxContentChars, appending "..." when text was cut.
func ClipContent(text string) string {
	r := []rune(text)
	if len(r) <= MaxContentChars {
		return text
	}
	return string(r[:MaxContentChars]) + "..."
}
