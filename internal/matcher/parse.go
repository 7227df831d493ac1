package matcher

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/freshloop/freshloop/internal/domain"
)

type Kind string

const (
	KindParsed          Kind = "parsed"
	KindPartiallyParsed Kind = "partially_parsed"
	KindUnparsed        Kind = "unparsed"
)

type Stage string

const (
	StageStrictJSON Stage = "strict_json"
	StageFencedJSON Stage = "fenced_json"
	StageDelimited  Stage = "delimited"
	StageNone       Stage = "none"
)

// Candidate is one pairing proposed by the model, with ordinals not yet
// resolved. RequestIndex is zero for single-request replies.
type Candidate struct {
	RequestIndex       int
	OfferIndex         int
	Score              int
	MatchedIngredients []string
	Reason             string
}

// Result is the outcome of parsing a model reply. Malformed counts entries
// that were present but could not be decoded.
type Result struct {
	Kind       Kind
	Stage      Stage
	Candidates []Candidate
	Malformed  int
	Err        error
}

// maxRawInError bounds how much of a reply is kept on a ParseError.
const maxRawInError = 300

// Parse runs the stage chain strict JSON, fenced JSON, delimited lines and
// returns the first result that is not unparsed.
func Parse(raw string) Result {
	raw = strings.TrimSpace(raw)

	var errs []error
	for _, stage := range []func(string) Result{ParseStrictJSON, ParseFencedJSON, ParseDelimited} {
		r := stage(raw)
		if r.Kind != KindUnparsed {
			return r
		}
		errs = append(errs, r.Err)
	}
	return unparsed(StageNone, raw, errors.Join(errs...))
}

func ParseStrictJSON(raw string) Result {
	return decodeJSON(StageStrictJSON, raw, []byte(strings.TrimSpace(raw)))
}

// ParseFencedJSON reads the body of the first code fence, then falls back to
// the first balanced object or array embedded in surrounding prose.
func ParseFencedJSON(raw string) Result {
	if body, ok := fencedBody(raw); ok {
		if r := decodeJSON(StageFencedJSON, raw, []byte(body)); r.Kind != KindUnparsed {
			return r
		}
	}

	var lastErr error = errors.New("no JSON object or array found")
	for _, span := range balancedSpans(raw) {
		r := decodeJSON(StageFencedJSON, raw, []byte(span))
		if r.Kind != KindUnparsed {
			return r
		}
		lastErr = r.Err
	}
	return unparsed(StageFencedJSON, raw, lastErr)
}

// ParseDelimited reads pipe-separated lines of the form
//
//	request_index | offer_index | score | ingredient, ingredient | reason
//	offer_index | score | ingredient, ingredient | reason
func ParseDelimited(raw string) Result {
	var (
		cands     []Candidate
		malformed int
	)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, "|") {
			continue
		}
		fields := splitPipes(line)
		if isRule(fields) || !hasNumber(fields) {
			continue
		}

		c, err := delimitedCandidate(fields)
		if err != nil {
			malformed++
			continue
		}
		cands = append(cands, c)
	}

	switch {
	case len(cands) == 0 && malformed == 0:
		return unparsed(StageDelimited, raw, errors.New("no delimited lines found"))
	case len(cands) == 0:
		return unparsed(StageDelimited, raw, fmt.Errorf("all %d delimited lines malformed", malformed))
	}
	return finish(StageDelimited, cands, malformed)
}

func delimitedCandidate(fields []string) (Candidate, error) {
	var (
		c   Candidate
		err error
	)
	switch len(fields) {
	case 5:
		if c.RequestIndex, err = parseInt(fields[0]); err != nil {
			return c, err
		}
		fields = fields[1:]
	case 4:
	default:
		return c, fmt.Errorf("expected 4 or 5 fields, got %d", len(fields))
	}

	if c.OfferIndex, err = parseInt(fields[0]); err != nil {
		return c, err
	}
	if c.Score, err = parseInt(fields[1]); err != nil {
		return c, err
	}
	c.MatchedIngredients = splitList(fields[2])
	c.Reason = fields[3]
	return c, nil
}

type envelope struct {
	Matches *[]json.RawMessage `json:"matches"`
}

type wireCandidate struct {
	RequestIndex       flexInt     `json:"request_index"`
	OfferIndex         flexInt     `json:"offer_index"`
	MatchScore         flexInt     `json:"match_score"`
	MatchedIngredients flexStrings `json:"matched_ingredients"`
	Reason             string      `json:"reason"`
}

// decodeJSON accepts either {"matches":[...]} or a bare array of candidates.
func decodeJSON(stage Stage, raw string, data []byte) Result {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return unparsed(stage, raw, errors.New("empty input"))
	}

	var items []json.RawMessage
	switch data[0] {
	case '[':
		if err := json.Unmarshal(data, &items); err != nil {
			return unparsed(stage, raw, err)
		}
	case '{':
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return unparsed(stage, raw, err)
		}
		if env.Matches != nil {
			items = *env.Matches
		}
	default:
		return unparsed(stage, raw, errors.New("not a JSON object or array"))
	}

	cands := make([]Candidate, 0, len(items))
	malformed := 0
	for _, item := range items {
		var w wireCandidate
		if err := json.Unmarshal(item, &w); err != nil {
			malformed++
			continue
		}
		cands = append(cands, Candidate{
			RequestIndex:       int(w.RequestIndex),
			OfferIndex:         int(w.OfferIndex),
			Score:              int(w.MatchScore),
			MatchedIngredients: []string(w.MatchedIngredients),
			Reason:             strings.TrimSpace(w.Reason),
		})
	}

	if len(cands) == 0 && malformed > 0 {
		return unparsed(stage, raw, fmt.Errorf("all %d entries malformed", malformed))
	}
	return finish(stage, cands, malformed)
}

func finish(stage Stage, cands []Candidate, malformed int) Result {
	kind := KindParsed
	if malformed > 0 {
		kind = KindPartiallyParsed
	}
	return Result{Kind: kind, Stage: stage, Candidates: cands, Malformed: malformed}
}

func unparsed(stage Stage, raw string, err error) Result {
	if len(raw) > maxRawInError {
		raw = raw[:maxRawInError]
	}
	return Result{
		Kind:  KindUnparsed,
		Stage: stage,
		Err:   &domain.ParseError{Stage: string(stage), Raw: raw, Err: err},
	}
}

func fencedBody(raw string) (string, bool) {
	var body string
	if i := strings.Index(raw, "```json"); i >= 0 {
		body = raw[i+len("```json"):]
	} else if i := strings.Index(raw, "```"); i >= 0 {
		body = raw[i+len("```"):]
		// Drop a language tag such as ```JSON or ```javascript.
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && isWord(strings.TrimSpace(body[:nl])) {
			body = body[nl+1:]
		}
	} else {
		return "", false
	}

	if j := strings.Index(body, "```"); j >= 0 {
		body = body[:j]
	}
	return strings.TrimSpace(body), true
}

// balancedSpans returns the first balanced {...} and [...] spans in raw,
// earliest first. Brackets inside JSON strings are ignored.
func balancedSpans(raw string) []string {
	var spans []string
	obj, arr := strings.IndexByte(raw, '{'), strings.IndexByte(raw, '[')
	starts := []int{obj, arr}
	if arr >= 0 && (obj < 0 || arr < obj) {
		starts = []int{arr, obj}
	}
	for _, start := range starts {
		if start < 0 {
			continue
		}
		if end := matchingClose(raw, start); end > start {
			spans = append(spans, raw[start:end+1])
		}
	}
	return spans
}

func matchingClose(s string, start int) int {
	open := s[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}

	depth := 0
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func splitPipes(line string) []string {
	line = strings.TrimPrefix(strings.TrimSuffix(line, "|"), "|")
	parts := strings.Split(line, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// isRule reports markdown table separators like |---|:---:|.
func isRule(fields []string) bool {
	for _, f := range fields {
		if strings.Trim(f, "-: ") != "" {
			return false
		}
	}
	return true
}

func hasNumber(fields []string) bool {
	for _, f := range fields {
		if _, err := parseInt(f); err == nil {
			return true
		}
	}
	return false
}

func isWord(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return false
		}
	}
	return true
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// parseInt reads an integer that may carry a trailing percent sign, a leading
// '#', or a fractional part (rounded).
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimSpace(strings.TrimSuffix(s, "%"))
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return int(math.Round(f)), nil
}

// flexInt decodes a JSON number, or a string holding one. null leaves zero.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		v, err := parseInt(s)
		if err != nil {
			return err
		}
		*n = flexInt(v)
		return nil
	}

	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = flexInt(math.Round(f))
	return nil
}

// flexStrings decodes a JSON array of strings or a single comma-separated string.
type flexStrings []string

func (s *flexStrings) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var one string
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		*s = splitList(one)
		return nil
	}

	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return err
	}
	out := make([]string, 0, len(many))
	for _, m := range many {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	*s = out
	return nil
}
