package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ashdown/tally/internal/database/repository"
)

func newTestClassifier(t *testing.T) (*ClassifierService, repository.Category, repository.Category) {
	t.Helper()
	db := newTestDB(t)
	groceries := newTestCategory(t, db, "Groceries")
	subs := newTestCategory(t, db, "Subscriptions")
	svc := NewClassifierService(repository.NewCategoryRuleRepo(db), repository.NewCategoryRepo(db))
	return svc, groceries, subs
}

func TestClassifyWildcards(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, groceries, _ := newTestClassifier(t)

	_, err := svc.SaveRule(ctx, "%TESCO%", groceries.ID, 10)
	require.NoError(t, err)

	for _, desc := range []string{"TESCO STORES 1234", "tesco.com", "My Tesco Extra"} {
		m, err := svc.Classify(ctx, desc)
		require.NoError(t, err)
		require.NotNil(t, m, "expected %q to match", desc)
		require.Equal(t, groceries.ID, m.CategoryID)
	}

	m, err := svc.Classify(ctx, "ALDI STORES")
	require.NoError(t, err)
	require.Nil(t, m, "no rule matches, transaction stays uncategorized")
}

func TestClassifySingleCharWildcard(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, groceries, _ := newTestClassifier(t)

	_, err := svc.SaveRule(ctx, "IGA_MART", groceries.ID, 10)
	require.NoError(t, err)

	m, err := svc.Classify(ctx, "IGA MART")
	require.NoError(t, err)
	require.NotNil(t, m)

	m, err = svc.Classify(ctx, "IGA  MART") // two chars, pattern wants one
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestClassifyAlternatives(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, _, subs := newTestClassifier(t)

	_, err := svc.SaveRule(ctx, "%NETFLIX%, %SPOTIFY%, %DISNEY PLUS%", subs.ID, 5)
	require.NoError(t, err)

	for _, desc := range []string{"NETFLIX.COM", "Spotify P2345", "DISNEY PLUS SUB"} {
		m, err := svc.Classify(ctx, desc)
		require.NoError(t, err)
		require.NotNil(t, m, "alternative should match %q", desc)
	}
}

func TestClassifyPriorityAndTieBreak(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, groceries, subs := newTestClassifier(t)

	// both match; lower priority wins
	low, err := svc.SaveRule(ctx, "%AMAZON%", subs.ID, 5)
	require.NoError(t, err)
	_, err = svc.SaveRule(ctx, "%AMAZON%", groceries.ID, 1)
	require.NoError(t, err)

	m, err := svc.Classify(ctx, "AMAZON.COM ORDER")
	require.NoError(t, err)
	require.NotNil(t, m)
	require.Equal(t, groceries.ID, m.CategoryID, "priority 1 beats priority 5")
	require.NotEqual(t, low.ID, m.Rule.ID)

	// equal priority: the earlier-created rule wins, repeatably
	first, err := svc.SaveRule(ctx, "%EBAY%", groceries.ID, 7)
	require.NoError(t, err)
	_, err = svc.SaveRule(ctx, "%EBAY%", subs.ID, 7)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		m, err := svc.Classify(ctx, "EBAY PURCHASE")
		require.NoError(t, err)
		require.NotNil(t, m)
		require.Equal(t, first.ID, m.Rule.ID, "run %d", i)
	}
}

func TestSaveRuleValidation(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, groceries, _ := newTestClassifier(t)

	_, err := svc.SaveRule(ctx, "", groceries.ID, 1)
	require.ErrorIs(t, err, ErrInvalidPattern)

	_, err = svc.SaveRule(ctx, "%TESCO%,,%ALDI%", groceries.ID, 1)
	require.ErrorIs(t, err, ErrInvalidPattern, "empty alternative is rejected at save time")

	_, err = svc.SaveRule(ctx, "%TESCO%", "no-such-category", 1)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestClassifySeesNewRulesImmediately(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, groceries, _ := newTestClassifier(t)

	m, err := svc.Classify(ctx, "COLES 0482")
	require.NoError(t, err)
	require.Nil(t, m)

	// the compiled set is cached; saving must invalidate it
	_, err = svc.SaveRule(ctx, "%COLES%", groceries.ID, 10)
	require.NoError(t, err)

	m, err = svc.Classify(ctx, "COLES 0482")
	require.NoError(t, err)
	require.NotNil(t, m)

	require.NoError(t, svc.DeleteRule(ctx, m.Rule.ID))
	m, err = svc.Classify(ctx, "COLES 0482")
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestCompilePatternLiteralRegexChars(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	svc, groceries, _ := newTestClassifier(t)

	// regex metacharacters in patterns are literals, only % and _ are magic
	_, err := svc.SaveRule(ctx, "%(AU) PTY.%", groceries.ID, 10)
	require.NoError(t, err)

	m, err := svc.Classify(ctx, "STORE (AU) PTY. LTD")
	require.NoError(t, err)
	require.NotNil(t, m)

	m, err = svc.Classify(ctx, "STORE AU PTYX LTD")
	require.NoError(t, err)
	require.Nil(t, m)
}
