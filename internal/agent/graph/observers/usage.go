package observers

import (
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"

	agentmodel "github.com/handbook-assistant/server/internal/agent/model"
)

// ModelUsage is the accumulated usage of one model.
type ModelUsage struct {
	Model            string          `json:"model"`
	Calls            int             `json:"calls"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	Cost             agentmodel.Cost `json:"cost"`
}

// UsageSummary totals a UsageMeter.
type UsageSummary struct {
	Models           []ModelUsage `json:"models"`
	Calls            int          `json:"calls"`
	PromptTokens     int          `json:"prompt_tokens"`
	CompletionTokens int          `json:"completion_tokens"`
	CostUSD          float64      `json:"cost_usd"`
}

// UsageMeter accumulates token usage and cost across model calls. It is safe
// for concurrent use.
type UsageMeter struct {
	mu      sync.Mutex
	byModel map[string]*ModelUsage
}

func NewUsageMeter() *UsageMeter {
	return &UsageMeter{byModel: map[string]*ModelUsage{}}
}

// Record adds one call and returns its cost.
func (m *UsageMeter) Record(model string, usage *schema.TokenUsage) agentmodel.Cost {
	cost := agentmodel.ResolvePricing(model).Cost(usage)
	if m == nil {
		return cost
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	u := m.byModel[model]
	if u == nil {
		u = &ModelUsage{Model: model}
		m.byModel[model] = u
	}
	u.Calls++
	if usage != nil {
		u.PromptTokens += usage.PromptTokens
		u.CompletionTokens += usage.CompletionTokens
	}
	u.Cost = u.Cost.Add(cost)
	return cost
}

// Summary returns per-model usage sorted by model name, plus totals.
func (m *UsageMeter) Summary() UsageSummary {
	var s UsageSummary
	if m == nil {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.byModel {
		s.Models = append(s.Models, *u)
		s.Calls += u.Calls
		s.PromptTokens += u.PromptTokens
		s.CompletionTokens += u.CompletionTokens
		s.CostUSD += u.Cost.Total()
	}
	sort.Slice(s.Models, func(i, j int) bool { return s.Models[i].Model < s.Models[j].Model })
	return s
}
