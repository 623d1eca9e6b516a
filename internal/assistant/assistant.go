// Package assistant answers natural-language questions about the registry.
// Known question shapes are answered from the identity list directly;
// anything else goes to an optional LLM provider.
package assistant

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kozaktomas/face-registry/internal/ai"
	"github.com/kozaktomas/face-registry/internal/constants"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/notify"
)

// Answer sources.
const (
	SourceRules = "rules"
	SourceLLM   = "llm"
	SourceHelp  = "help"
)

// maxSummaryNames bounds the identities listed in an LLM prompt.
const maxSummaryNames = 200

const helpText = `Query not recognized. Try: "how many registered?", ` +
	`"who was the last person registered?", "who was registered today?", ` +
	`"recent registrations", "find <name>" or "when was <name> added?"`

// Source lists registered identities.
type Source interface {
	List(ctx context.Context) ([]database.IdentityRecord, error)
}

// Person is one identity in an answer.
type Person struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	RegisteredAt time.Time `json:"registered_at"`
}

// Answer is the reply to a question.
type Answer struct {
	Answer    string    `json:"answer"`
	People    []Person  `json:"people,omitempty"`
	Count     *int      `json:"count,omitempty"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	// Usage is the token count of the LLM call behind a SourceLLM answer.
	Usage *ai.Usage `json:"usage,omitempty"`
}

// Assistant answers questions over a Source.
type Assistant struct {
	source   Source
	provider ai.Provider
	listener notify.Listener
	loc      *time.Location
	now      func() time.Time
	logger   *slog.Logger

	// llmMu serializes provider calls; usage counters are per provider.
	llmMu sync.Mutex
}

// Option configures an Assistant.
type Option func(*Assistant)

// WithProvider answers unrecognized questions with an LLM.
func WithProvider(p ai.Provider) Option {
	return func(a *Assistant) { a.provider = p }
}

// WithListener announces every answered question.
func WithListener(l notify.Listener) Option {
	return func(a *Assistant) { a.listener = l }
}

// WithLocation sets the time zone for "today" and "this week".
func WithLocation(loc *time.Location) Option {
	return func(a *Assistant) { a.loc = loc }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// New creates an assistant reading identities from source.
func New(source Source, opts ...Option) *Assistant {
	a := &Assistant{
		source: source,
		loc:    time.Local,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var (
	countPattern   = regexp.MustCompile(`^how many( people| persons| faces| identities)?( are)?( registered)?$`)
	lastPattern    = regexp.MustCompile(`^who (was|is) the (last|latest|newest|most recent)( person)?( registered| added)?$`)
	recentPattern  = regexp.MustCompile(`^(recent|latest|list)( registrations| people| faces)?$`)
	whenPattern    = regexp.MustCompile(`^when was (.+?) (added|registered)$`)
	findPattern    = regexp.MustCompile(`^(find|search|search for|look up) (.+)$`)
	periodPattern  = regexp.MustCompile(`^who (was|were) (registered|added) (today|yesterday|this week|last week)$`)
	onDatePattern  = regexp.MustCompile(`^who (was|were) (registered|added) on (\d{4}-\d{2}-\d{2})$`)
	trailingPunct  = regexp.MustCompile(`[?.!\s]+$`)
	whitespaceRuns = regexp.MustCompile(`\s+`)
)

// Ask answers question. Errors are returned only when the identity list
// cannot be read; unanswerable questions yield a help answer.
func (a *Assistant) Ask(ctx context.Context, question string) (Answer, error) {
	ans, err := a.answer(ctx, question)
	if err != nil {
		return ans, err
	}
	if a.listener != nil {
		a.listener.Notify(ctx, notify.Event{
			Type:      notify.EventQueryProcessed,
			Query:     question,
			Answer:    ans.Answer,
			Source:    ans.Source,
			Timestamp: ans.Timestamp,
		})
	}
	return ans, nil
}

func (a *Assistant) answer(ctx context.Context, question string) (Answer, error) {
	q := normalizeQuestion(question)
	if q == "" {
		return a.reply(SourceHelp, helpText), nil
	}

	records, err := a.source.List(ctx)
	if err != nil {
		return Answer{}, fmt.Errorf("listing identities: %w", err)
	}
	slices.SortFunc(records, func(x, y database.IdentityRecord) int {
		if c := x.RegisteredAt.Compare(y.RegisteredAt); c != 0 {
			return c
		}
		return cmp.Compare(x.ID, y.ID)
	})

	if ans, ok := a.answerByRule(q, records); ok {
		return ans, nil
	}

	if a.provider == nil {
		return a.reply(SourceHelp, helpText), nil
	}
	text, usage, err := a.askProvider(ctx, question, a.summary(records))
	if err != nil {
		a.logger.Warn("llm answer failed", "provider", a.provider.Name(), "error", err)
		return a.reply(SourceHelp, helpText), nil
	}
	a.logger.Info("llm answer", "provider", a.provider.Name(),
		"input_tokens", usage.InputTokens, "output_tokens", usage.OutputTokens)
	ans := a.reply(SourceLLM, text)
	ans.Usage = &usage
	return ans, nil
}

func (a *Assistant) askProvider(ctx context.Context, question, summary string) (string, ai.Usage, error) {
	a.llmMu.Lock()
	defer a.llmMu.Unlock()

	a.provider.ResetUsage()
	text, err := a.provider.Answer(ctx, question, summary)
	return text, *a.provider.GetUsage(), err
}

func (a *Assistant) answerByRule(q string, records []database.IdentityRecord) (Answer, bool) {
	switch {
	case countPattern.MatchString(q):
		n := len(records)
		ans := a.reply(SourceRules, fmt.Sprintf("%d %s registered.", n, plural(n, "person is", "people are")))
		ans.Count = &n
		return ans, true

	case lastPattern.MatchString(q):
		if len(records) == 0 {
			return a.reply(SourceRules, "No one is registered yet."), true
		}
		last := records[len(records)-1]
		ans := a.reply(SourceRules, fmt.Sprintf("%s was the last person registered.", last.Name))
		ans.People = people(last)
		return ans, true

	case recentPattern.MatchString(q):
		start := max(0, len(records)-constants.RecentRegistrationsLimit)
		recent := slices.Clone(records[start:])
		slices.Reverse(recent)
		if len(recent) == 0 {
			return a.reply(SourceRules, "No one is registered yet."), true
		}
		ans := a.reply(SourceRules, "Most recent registrations: "+names(recent)+".")
		ans.People = people(recent...)
		return ans, true

	case whenPattern.MatchString(q):
		name := whenPattern.FindStringSubmatch(q)[1]
		key := facematch.NormalizePersonName(name)
		for _, r := range records {
			if r.NameKey == key || facematch.NormalizePersonName(r.Name) == key {
				ans := a.reply(SourceRules, fmt.Sprintf("%s was added on %s.", r.Name, a.formatTime(r.RegisteredAt)))
				ans.People = people(r)
				return ans, true
			}
		}
		return a.reply(SourceRules, fmt.Sprintf("%s is not a registered person.", name)), true

	case findPattern.MatchString(q):
		term := facematch.NormalizePersonName(findPattern.FindStringSubmatch(q)[2])
		var found []database.IdentityRecord
		for _, r := range records {
			if strings.Contains(facematch.NormalizePersonName(r.Name), term) {
				found = append(found, r)
			}
		}
		text := fmt.Sprintf("Found %d matching %s for %q.", len(found), plural(len(found), "person", "people"), term)
		if len(found) > 0 {
			text += " " + names(found) + "."
		}
		ans := a.reply(SourceRules, text)
		ans.People = people(found...)
		return ans, true

	case periodPattern.MatchString(q):
		period := periodPattern.FindStringSubmatch(q)[3]
		from, to := a.periodRange(period)
		return a.between(records, from, to, period), true

	case onDatePattern.MatchString(q):
		day, err := time.ParseInLocation(time.DateOnly, onDatePattern.FindStringSubmatch(q)[3], a.loc)
		if err != nil {
			return a.reply(SourceRules, "That date is not valid. Use YYYY-MM-DD."), true
		}
		return a.between(records, day, day.AddDate(0, 0, 1), "on "+day.Format(time.DateOnly)), true
	}
	return Answer{}, false
}

// periodRange returns [from, to) for a named period in the assistant's zone.
// Weeks start on Monday.
func (a *Assistant) periodRange(period string) (time.Time, time.Time) {
	now := a.now().In(a.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, a.loc)
	weekStart := today.AddDate(0, 0, -((int(today.Weekday()) + 6) % 7))

	switch period {
	case "yesterday":
		return today.AddDate(0, 0, -1), today
	case "this week":
		return weekStart, weekStart.AddDate(0, 0, 7)
	case "last week":
		return weekStart.AddDate(0, 0, -7), weekStart
	default:
		return today, today.AddDate(0, 0, 1)
	}
}

func (a *Assistant) between(records []database.IdentityRecord, from, to time.Time, label string) Answer {
	var found []database.IdentityRecord
	for _, r := range records {
		if !r.RegisteredAt.Before(from) && r.RegisteredAt.Before(to) {
			found = append(found, r)
		}
	}
	if len(found) == 0 {
		return a.reply(SourceRules, fmt.Sprintf("No one was registered %s.", label))
	}
	ans := a.reply(SourceRules, fmt.Sprintf("%d registered %s: %s.", len(found), label, names(found)))
	ans.People = people(found...)
	return ans
}

// summary describes the registry for an LLM prompt, newest first.
func (a *Assistant) summary(records []database.IdentityRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current time: %s\n", a.formatTime(a.now()))
	fmt.Fprintf(&b, "Registered identities: %d\n", len(records))
	for i := len(records) - 1; i >= 0 && len(records)-i <= maxSummaryNames; i-- {
		fmt.Fprintf(&b, "- %s, registered %s\n", records[i].Name, a.formatTime(records[i].RegisteredAt))
	}
	if len(records) > maxSummaryNames {
		fmt.Fprintf(&b, "(%d older identities omitted)\n", len(records)-maxSummaryNames)
	}
	return b.String()
}

func (a *Assistant) reply(source, text string) Answer {
	return Answer{Answer: text, Source: source, Timestamp: a.now().UTC()}
}

func (a *Assistant) formatTime(t time.Time) string {
	return t.In(a.loc).Format("2006-01-02 15:04")
}

func normalizeQuestion(q string) string {
	q = strings.ToLower(strings.TrimSpace(q))
	q = trailingPunct.ReplaceAllString(q, "")
	return whitespaceRuns.ReplaceAllString(q, " ")
}

func people(records ...database.IdentityRecord) []Person {
	out := make([]Person, len(records))
	for i, r := range records {
		out[i] = Person{ID: r.ID, Name: r.Name, RegisteredAt: r.RegisteredAt}
	}
	return out
}

func names(records []database.IdentityRecord) string {
	parts := make([]string, len(records))
	for i, r := range records {
		parts[i] = r.Name
	}
	return strings.Join(parts, ", ")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
