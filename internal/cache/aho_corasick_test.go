package cache

import (
	"testing"
)

func TestAhoCorasickBasicOperations(t *testing.T) {
	t.Parallel()

	ac := NewAhoCorasick()
	ac.AddPattern("he", nil)
	ac.AddPattern("she", nil)
	ac.AddPattern("his", nil)
	ac.AddPattern("hers", nil)
	ac.Build()

	matches := ac.Search("ushers")
	if len(matches) < 3 {
		t.Errorf("expected at least 3 matches, got %d", len(matches))
	}

	var foundShe, foundHe, foundHers bool
	for _, m := range matches {
		switch m.Pattern {
		case "she":
			foundShe = true
		case "he":
			foundHe = true
		case "hers":
			foundHers = true
		}
	}
	if !foundShe || !foundHe || !foundHers {
		t.Errorf("expected she/he/hers all found, got %+v", matches)
	}
}

func TestAhoCorasickCaseInsensitive(t *testing.T) {
	t.Parallel()

	ac := NewAhoCorasick()
	ac.AddPattern("prezzi", nil)
	ac.AddPattern("produzione", nil)
	ac.Build()

	for _, text := range []string{
		"prezzi e produzione",
		"PREZZI E PRODUZIONE",
		"Prezzi E Produzione",
	} {
		if matches := ac.Search(text); len(matches) != 2 {
			t.Errorf("Search(%q) = %d matches, want 2", text, len(matches))
		}
	}
}

func TestAhoCorasickAssociatedDataSurvivesMatch(t *testing.T) {
	t.Parallel()

	ac := NewAhoCorasick()
	ac.AddPattern("agricoltura", "category:agriculture")
	ac.AddPattern("industria", "category:industry")
	ac.Build()

	matches := ac.Search("indice della produzione industria e agricoltura")
	byData := map[string]bool{}
	for _, m := range matches {
		byData[m.Data.(string)] = true
	}

	if !byData["category:agriculture"] || !byData["category:industry"] {
		t.Errorf("expected both categories matched, got %+v", matches)
	}
}

func TestAhoCorasickSearchFirstAndContains(t *testing.T) {
	t.Parallel()

	ac := NewAhoCorasick()
	ac.AddPattern("commercio", "trade")
	ac.Build()

	if !ac.Contains("indice del commercio al dettaglio") {
		t.Error("expected Contains to report a match")
	}
	if ac.Contains("nessuna corrispondenza qui") {
		t.Error("expected Contains to report no match")
	}

	match, ok := ac.SearchFirst("indice del commercio al dettaglio")
	if !ok || match.Pattern != "commercio" {
		t.Errorf("expected first match 'commercio', got %+v ok=%v", match, ok)
	}
}

func TestAhoCorasickEmptyPatternSetNeverMatches(t *testing.T) {
	t.Parallel()

	ac := NewAhoCorasick()
	ac.Build()

	if ac.Contains("anything at all") {
		t.Error("expected no matches with zero registered patterns")
	}
}

func TestAhoCorasickClearResetsAutomaton(t *testing.T) {
	t.Parallel()

	ac := NewAhoCorasick()
	ac.AddPattern("prezzi", nil)
	ac.Build()

	if !ac.Contains("prezzi") {
		t.Fatal("expected match before Clear")
	}

	ac.Clear()
	if ac.PatternCount() != 0 {
		t.Errorf("expected 0 patterns after Clear, got %d", ac.PatternCount())
	}
	if ac.Contains("prezzi") {
		t.Error("expected no matches after Clear, even against a previously registered pattern")
	}
}

func TestPatternMatcherFromSlice(t *testing.T) {
	t.Parallel()

	pm := NewPatternMatcherFromSlice([]string{"export", "import"}, "trade-rule")
	matches := pm.Match("commercio con export e import")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	for _, m := range matches {
		if m.Data.(string) != "trade-rule" {
			t.Errorf("expected shared data trade-rule, got %v", m.Data)
		}
	}
}

func TestNewPatternMatcherFromMap(t *testing.T) {
	t.Parallel()

	pm := NewPatternMatcher(map[string]any{
		"agricoltura": "agriculture",
		"industria":   "industry",
	})

	if !pm.Contains("produzione industria") {
		t.Error("expected match against map-built matcher")
	}
	if _, ok := pm.MatchFirst("nulla di rilevante"); ok {
		t.Error("expected no match for unrelated text")
	}
}
