package metadata

import (
	"context"
	"fmt"
	"strings"
)

// categorizationManager is the CategorizationRuleManager (C1) from §4.1.
type categorizationManager struct {
	s *Store
}

func normalizeKeywords(keywords []string) []string {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func (m *categorizationManager) create(ctx context.Context, r CategorizationRule) error {
	keywords := normalizeKeywords(r.Keywords)
	if len(keywords) == 0 {
		return fmt.Errorf("categorization rule %s: keywords must not be empty after normalization", r.RuleID)
	}

	_, err := m.s.writeDB.ExecContext(ctx, `
		INSERT INTO categorization_rules (rule_id, category, keywords, priority, is_active, description)
		VALUES (?, ?, ?, ?, ?, ?)
	`, r.RuleID, r.Category, strings.Join(keywords, ","), r.Priority, r.IsActive, r.Description)
	if err != nil {
		return fmt.Errorf("create categorization rule %s: %w", r.RuleID, err)
	}
	return nil
}

// Create registers a new categorization rule. RuleID must be unique.
func (m *categorizationManager) Create(ctx context.Context, r CategorizationRule) error {
	return m.create(ctx, r)
}

// Update replaces an existing rule's fields.
func (m *categorizationManager) Update(ctx context.Context, r CategorizationRule) error {
	keywords := normalizeKeywords(r.Keywords)
	if len(keywords) == 0 {
		return fmt.Errorf("categorization rule %s: keywords must not be empty after normalization", r.RuleID)
	}

	res, err := m.s.writeDB.ExecContext(ctx, `
		UPDATE categorization_rules
		SET category = ?, keywords = ?, priority = ?, is_active = ?, description = ?
		WHERE rule_id = ?
	`, r.Category, strings.Join(keywords, ","), r.Priority, r.IsActive, r.Description, r.RuleID)
	if err != nil {
		return fmt.Errorf("update categorization rule %s: %w", r.RuleID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("categorization rule %s not found", r.RuleID)
	}
	return nil
}

// Delete removes a categorization rule.
func (m *categorizationManager) Delete(ctx context.Context, ruleID string) error {
	_, err := m.s.writeDB.ExecContext(ctx, `DELETE FROM categorization_rules WHERE rule_id = ?`, ruleID)
	if err != nil {
		return fmt.Errorf("delete categorization rule %s: %w", ruleID, err)
	}
	return nil
}

// GetRules returns rules ordered by priority DESC then rule_id ASC,
// optionally filtered by category and active-only.
func (m *categorizationManager) GetRules(ctx context.Context, category string, activeOnly bool) ([]CategorizationRule, error) {
	query := `SELECT rule_id, category, keywords, priority, is_active, description FROM categorization_rules WHERE 1=1`
	var args []any
	if category != "" {
		query += " AND category = ?"
		args = append(args, category)
	}
	if activeOnly {
		query += " AND is_active = 1"
	}
	query += " ORDER BY priority DESC, rule_id ASC"

	rows, err := m.s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get categorization rules: %w", err)
	}
	defer rows.Close()

	var out []CategorizationRule
	for rows.Next() {
		var r CategorizationRule
		var keywordsStr string
		var isActive int
		if err := rows.Scan(&r.RuleID, &r.Category, &keywordsStr, &r.Priority, &isActive, &r.Description); err != nil {
			return nil, err
		}
		r.IsActive = isActive != 0
		if keywordsStr != "" {
			r.Keywords = strings.Split(keywordsStr, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
