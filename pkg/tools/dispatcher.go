package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/rawi-voice/rawi/pkg/retrieval"
	"github.com/rawi-voice/rawi/pkg/tools/adapters/tavily"
	"github.com/rawi-voice/rawi/pkg/tools/adapters/weatherapi"
)

// ErrDuplicateCall reports an attempt to dispatch a call id that was already
// dispatched. Each call id executes at most once.
var ErrDuplicateCall = errors.New("tool call id already dispatched")

// Retriever is the knowledge retrieval path.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]retrieval.Passage, error)
}

// WeatherService is the external current-conditions capability.
type WeatherService interface {
	Current(ctx context.Context, city string) (*weatherapi.Conditions, error)
}

// SearchService is the external web search capability.
type SearchService interface {
	Search(ctx context.Context, query string, maxResults int) ([]tavily.Hit, error)
}

type DispatcherOptions struct {
	ToolTimeout           time.Duration // web search
	WeatherTimeout        time.Duration
	SearchMaxResults      int
	SearchSnippetMaxChars int
	PayloadMaxChars       int
	Logger                *slog.Logger
}

// Dispatcher routes tool-call requests to their handlers. Every turn-scoped
// failure is folded into a Result here; nothing a handler does can escape and
// end the session.
type Dispatcher struct {
	retriever Retriever
	weather   WeatherService
	search    SearchService
	opts      DispatcherOptions

	mu   sync.Mutex
	seen map[string]struct{}
}

func NewDispatcher(retriever Retriever, weather WeatherService, search SearchService, opts DispatcherOptions) *Dispatcher {
	if opts.ToolTimeout <= 0 {
		opts.ToolTimeout = 8 * time.Second
	}
	if opts.WeatherTimeout <= 0 {
		opts.WeatherTimeout = 5 * time.Second
	}
	if opts.SearchMaxResults <= 0 {
		opts.SearchMaxResults = 3
	}
	if opts.SearchSnippetMaxChars <= 0 {
		opts.SearchSnippetMaxChars = 200
	}
	if opts.PayloadMaxChars <= 0 {
		opts.PayloadMaxChars = 2000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Dispatcher{
		retriever: retriever,
		weather:   weather,
		search:    search,
		opts:      opts,
		seen:      make(map[string]struct{}),
	}
}

// Dispatch executes one request and always returns a Result unless the call
// id was already dispatched. Unknown tools and bad arguments become failure
// Results without invoking any handler.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.CallID) == "" {
		return Result{}, fmt.Errorf("tool call id is required")
	}
	d.mu.Lock()
	if _, dup := d.seen[req.CallID]; dup {
		d.mu.Unlock()
		return Result{}, fmt.Errorf("%w: %s", ErrDuplicateCall, req.CallID)
	}
	d.seen[req.CallID] = struct{}{}
	d.mu.Unlock()

	start := time.Now()
	result := d.execute(ctx, req)
	result.CallID = req.CallID
	result.TurnID = req.TurnID
	result.Latency = time.Since(start)
	result.Payload = truncateRunes(result.Payload, d.opts.PayloadMaxChars)

	d.opts.Logger.Info("tool call finished",
		"tool", req.Name,
		"call_id", req.CallID,
		"turn_id", req.TurnID,
		"status", string(result.Status),
		"latency_ms", result.Latency.Milliseconds())
	return result, nil
}

// DispatchAll fans requests out concurrently and delivers Results in the
// order they complete. The channel closes once every request has resolved.
func (d *Dispatcher) DispatchAll(ctx context.Context, reqs []Request) <-chan Result {
	out := make(chan Result, len(reqs))
	var wg conc.WaitGroup
	for _, req := range reqs {
		wg.Go(func() {
			result, err := d.Dispatch(ctx, req)
			if err != nil {
				d.opts.Logger.Warn("tool call dropped", "call_id", req.CallID, "error", err)
				return
			}
			out <- result
		})
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func (d *Dispatcher) execute(ctx context.Context, req Request) Result {
	name, known := ParseName(req.Name)
	if !known {
		return Result{
			Status:  StatusFailure,
			Payload: fmt.Sprintf("unknown tool %q; available tools are retrieve_knowledge, get_weather, web_search", req.Name),
		}
	}

	switch name {
	case NameRetrieveKnowledge:
		query, ok := stringArg(req.Arguments, "query")
		if !ok {
			return invalidArguments(name, "query")
		}
		return d.retrieveKnowledge(ctx, query)
	case NameGetWeather:
		city, ok := stringArg(req.Arguments, "city")
		if !ok {
			return invalidArguments(name, "city")
		}
		return d.getWeather(ctx, city)
	case NameWebSearch:
		query, ok := stringArg(req.Arguments, "query")
		if !ok {
			return invalidArguments(name, "query")
		}
		return d.webSearch(ctx, query)
	}
	// ParseName returned a known name; the switch above is exhaustive.
	return Result{Status: StatusFailure, Payload: fmt.Sprintf("unknown tool %q", req.Name)}
}

func (d *Dispatcher) retrieveKnowledge(ctx context.Context, query string) Result {
	passages, err := d.retriever.Retrieve(ctx, query)
	switch {
	case errors.Is(err, retrieval.ErrTimeout):
		// Timed-out retrieval degrades to "no knowledge found".
		return Result{Status: StatusTimeout, Payload: msgNoKnowledge}
	case err != nil:
		return Result{Status: StatusFailure, Payload: msgKnowledgeFailure}
	}
	return Result{Status: StatusSuccess, Payload: formatPassages(passages)}
}

func (d *Dispatcher) getWeather(ctx context.Context, city string) Result {
	callCtx, cancel := context.WithTimeout(ctx, d.opts.WeatherTimeout)
	defer cancel()

	conditions, err := d.weather.Current(callCtx, city)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Result{Status: StatusTimeout, Payload: msgWeatherFailure(city)}
	case err != nil:
		return Result{Status: StatusFailure, Payload: msgWeatherFailure(city)}
	}
	return Result{Status: StatusSuccess, Payload: formatConditions(conditions)}
}

func (d *Dispatcher) webSearch(ctx context.Context, query string) Result {
	callCtx, cancel := context.WithTimeout(ctx, d.opts.ToolTimeout)
	defer cancel()

	hits, err := d.search.Search(callCtx, query, d.opts.SearchMaxResults)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Result{Status: StatusTimeout, Payload: msgSearchFailure}
	case err != nil:
		return Result{Status: StatusFailure, Payload: msgSearchFailure}
	}
	return Result{Status: StatusSuccess, Payload: formatHits(hits, d.opts.SearchSnippetMaxChars)}
}

func invalidArguments(name Name, param string) Result {
	return Result{
		Status:  StatusFailure,
		Payload: fmt.Sprintf("missing or invalid %q argument for %s", param, name),
	}
}

func stringArg(args map[string]any, key string) (string, bool) {
	raw, ok := args[key]
	if !ok {
		return "", false
	}
	value, ok := raw.(string)
	if !ok {
		return "", false
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false
	}
	return value, true
}
