package strategy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"cryptoSignalBot/internal/domain"
	"cryptoSignalBot/internal/ports"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"
)

// SettingsKey is the storage key of the strategy list.
const SettingsKey = "trading_strategies"

// SettingsManager persists strategy settings in a ports.Storage document.
// It is seeded with domain.DefaultStrategy when storage holds none.
type SettingsManager struct {
	store  ports.Storage
	logger ports.Logger

	mu         sync.RWMutex
	strategies []domain.StrategySettings
}

// NewSettingsManager loads the stored strategies, skipping invalid entries.
func NewSettingsManager(ctx context.Context, store ports.Storage, logger ports.Logger) (*SettingsManager, error) {
	if store == nil || logger == nil {
		return nil, errors.New("missing required dependencies for settings manager")
	}
	m := &SettingsManager{store: store, logger: logger}
	if err := m.load(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *SettingsManager) load(ctx context.Context) error {
	raw, found, err := m.store.Load(ctx, SettingsKey)
	if err != nil {
		return fmt.Errorf("loading strategies: %w", err)
	}

	var stored []domain.StrategySettings
	if found && len(raw) > 0 {
		if err := sonic.Unmarshal(raw, &stored); err != nil {
			m.logger.Error(ctx, err, "Stored strategies are corrupt, falling back to default")
			stored = nil
		}
	}
	for _, s := range stored {
		if err := s.Validate(); err != nil {
			m.logger.Warn(ctx, "Invalid strategy found in storage", map[string]interface{}{
				"strategyId": s.ID,
				"error":      err.Error(),
			})
			continue
		}
		m.strategies = append(m.strategies, s)
	}

	if len(m.strategies) == 0 {
		m.strategies = []domain.StrategySettings{domain.DefaultStrategy()}
		m.logger.Info(ctx, "No stored strategies, seeded default", map[string]interface{}{"strategyId": m.strategies[0].ID})
		return m.save(ctx)
	}
	m.logger.Info(ctx, "Strategies loaded from storage", map[string]interface{}{"count": len(m.strategies)})
	return nil
}

// List returns all strategies in insertion order.
func (m *SettingsManager) List(ctx context.Context) ([]domain.StrategySettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.StrategySettings, len(m.strategies))
	for i, s := range m.strategies {
		out[i] = clone(s)
	}
	return out, nil
}

// ActiveStrategies returns the strategies with IsActive set.
func (m *SettingsManager) ActiveStrategies(ctx context.Context) ([]domain.StrategySettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.StrategySettings
	for _, s := range m.strategies {
		if s.IsActive {
			out = append(out, clone(s))
		}
	}
	return out, nil
}

// Get returns the strategy with id or ports.ErrNotFound.
func (m *SettingsManager) Get(ctx context.Context, id string) (*domain.StrategySettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx := m.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("strategy %q: %w", id, ports.ErrNotFound)
	}
	s := clone(m.strategies[idx])
	return &s, nil
}

// Add stores a new strategy. Ids must be unique.
func (m *SettingsManager) Add(ctx context.Context, s domain.StrategySettings) error {
	op := "AddStrategy"
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidStrategy, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.indexOf(s.ID) >= 0 {
		return fmt.Errorf("%s failed: %w: strategy %q", op, ports.ErrDuplicateEntry, s.ID)
	}
	m.strategies = append(m.strategies, clone(s))
	if err := m.save(ctx); err != nil {
		m.strategies = m.strategies[:len(m.strategies)-1]
		return fmt.Errorf("%s failed: %w", op, err)
	}
	m.logger.Info(ctx, "Strategy added", map[string]interface{}{"strategyId": s.ID})
	return nil
}

// Update applies mutate to a copy of the strategy with id, validates the result and
// stores it. The id cannot be changed.
func (m *SettingsManager) Update(ctx context.Context, id string, mutate func(*domain.StrategySettings)) (*domain.StrategySettings, error) {
	op := "UpdateStrategy"
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexOf(id)
	if idx < 0 {
		return nil, fmt.Errorf("%s failed: %w: strategy %q", op, ports.ErrNotFound, id)
	}
	previous := m.strategies[idx]
	updated := clone(previous)
	mutate(&updated)
	updated.ID = id
	if err := updated.Validate(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %w", op, ports.ErrInvalidStrategy, err)
	}
	m.strategies[idx] = updated
	if err := m.save(ctx); err != nil {
		m.strategies[idx] = previous
		return nil, fmt.Errorf("%s failed: %w", op, err)
	}
	m.logger.Info(ctx, "Strategy updated", map[string]interface{}{"strategyId": id})
	out := clone(updated)
	return &out, nil
}

// SetActive toggles whether the scheduler evaluates the strategy.
func (m *SettingsManager) SetActive(ctx context.Context, id string, active bool) error {
	_, err := m.Update(ctx, id, func(s *domain.StrategySettings) { s.IsActive = active })
	return err
}

// Delete removes the strategy with id.
func (m *SettingsManager) Delete(ctx context.Context, id string) error {
	op := "DeleteStrategy"
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := m.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%s failed: %w: strategy %q", op, ports.ErrNotFound, id)
	}
	previous := m.strategies
	remaining := make([]domain.StrategySettings, 0, len(previous)-1)
	remaining = append(remaining, previous[:idx]...)
	remaining = append(remaining, previous[idx+1:]...)
	m.strategies = remaining
	if err := m.save(ctx); err != nil {
		m.strategies = previous
		return fmt.Errorf("%s failed: %w", op, err)
	}
	m.logger.Info(ctx, "Strategy deleted", map[string]interface{}{"strategyId": id})
	return nil
}

// UpdatePerformance stores the latest performance summary on each known strategy.
// Unknown strategy ids are ignored.
func (m *SettingsManager) UpdatePerformance(ctx context.Context, perf map[string]*domain.StrategyPerformance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	changed := false
	for i := range m.strategies {
		p, ok := perf[m.strategies[i].ID]
		if !ok || p == nil {
			continue
		}
		cp := *p
		m.strategies[i].Performance = &cp
		changed = true
	}
	if !changed {
		return nil
	}
	if err := m.save(ctx); err != nil {
		return fmt.Errorf("UpdatePerformance failed: %w", err)
	}
	return nil
}

// ImportJSON adds or replaces strategies from a JSON object or array.
// It returns the number of strategies imported. Nothing is stored if any entry is invalid.
func (m *SettingsManager) ImportJSON(ctx context.Context, data []byte) (int, error) {
	var list []domain.StrategySettings
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := sonic.Unmarshal(trimmed, &list); err != nil {
			return 0, fmt.Errorf("ImportJSON failed: %w: %w", ports.ErrInvalidRequest, err)
		}
	} else {
		var one domain.StrategySettings
		if err := sonic.Unmarshal(trimmed, &one); err != nil {
			return 0, fmt.Errorf("ImportJSON failed: %w: %w", ports.ErrInvalidRequest, err)
		}
		list = append(list, one)
	}
	return m.importAll(ctx, "ImportJSON", list)
}

// ImportYAML adds or replaces strategies from a YAML mapping or sequence.
func (m *SettingsManager) ImportYAML(ctx context.Context, data []byte) (int, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return 0, fmt.Errorf("ImportYAML failed: %w: %w", ports.ErrInvalidRequest, err)
	}
	if len(node.Content) == 0 {
		return 0, fmt.Errorf("ImportYAML failed: %w: empty document", ports.ErrInvalidRequest)
	}

	var list []domain.StrategySettings
	root := node.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&list); err != nil {
			return 0, fmt.Errorf("ImportYAML failed: %w: %w", ports.ErrInvalidRequest, err)
		}
	case yaml.MappingNode:
		var one domain.StrategySettings
		if err := root.Decode(&one); err != nil {
			return 0, fmt.Errorf("ImportYAML failed: %w: %w", ports.ErrInvalidRequest, err)
		}
		list = append(list, one)
	default:
		return 0, fmt.Errorf("ImportYAML failed: %w: expected a mapping or a sequence", ports.ErrInvalidRequest)
	}
	return m.importAll(ctx, "ImportYAML", list)
}

// ExportYAML renders all strategies as a YAML sequence.
func (m *SettingsManager) ExportYAML(ctx context.Context) ([]byte, error) {
	list, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range list {
		list[i].Performance = nil
	}
	out, err := yaml.Marshal(list)
	if err != nil {
		return nil, fmt.Errorf("ExportYAML failed: %w", err)
	}
	return out, nil
}

func (m *SettingsManager) importAll(ctx context.Context, op string, list []domain.StrategySettings) (int, error) {
	if len(list) == 0 {
		return 0, fmt.Errorf("%s failed: %w: no strategies in document", op, ports.ErrInvalidRequest)
	}
	for i := range list {
		if err := list[i].Validate(); err != nil {
			return 0, fmt.Errorf("%s failed: %w: entry %d (%s): %w", op, ports.ErrInvalidStrategy, i, list[i].ID, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	previous := make([]domain.StrategySettings, len(m.strategies))
	copy(previous, m.strategies)
	for _, s := range list {
		if idx := m.indexOf(s.ID); idx >= 0 {
			m.strategies[idx] = clone(s)
		} else {
			m.strategies = append(m.strategies, clone(s))
		}
	}
	if err := m.save(ctx); err != nil {
		m.strategies = previous
		return 0, fmt.Errorf("%s failed: %w", op, err)
	}
	m.logger.Info(ctx, op+": strategies imported", map[string]interface{}{"count": len(list)})
	return len(list), nil
}

// save must be called with mu held.
func (m *SettingsManager) save(ctx context.Context) error {
	raw, err := sonic.Marshal(m.strategies)
	if err != nil {
		return fmt.Errorf("encoding strategies: %w", err)
	}
	if err := m.store.Save(ctx, SettingsKey, raw); err != nil {
		m.logger.Error(ctx, err, "Error saving strategies")
		return fmt.Errorf("saving strategies: %w", err)
	}
	m.logger.Debug(ctx, "Strategies saved to storage", map[string]interface{}{"count": len(m.strategies)})
	return nil
}

func (m *SettingsManager) indexOf(id string) int {
	for i, s := range m.strategies {
		if s.ID == id {
			return i
		}
	}
	return -1
}

func clone(s domain.StrategySettings) domain.StrategySettings {
	s.Symbols = append([]string(nil), s.Symbols...)
	s.Timeframes = append([]string(nil), s.Timeframes...)
	if s.Performance != nil {
		p := *s.Performance
		s.Performance = &p
	}
	return s
}
