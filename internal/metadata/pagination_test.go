package metadata

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
)

type item struct {
	id string
	at time.Time
}

func items(n int) []item {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]item, n)
	for i := range out {
		out[i] = item{id: fmt.Sprintf("it_%02d", i), at: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func ids(p Page[item]) []string {
	out := make([]string, len(p.Data))
	for i, it := range p.Data {
		out[i] = it.id
	}
	return out
}

func key(it item) sortKey { return sortKey{it.at, it.id} }

func TestListParams_Normalize(t *testing.T) {
	p, err := ListParams{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, p.Limit)
	assert.Equal(t, OrderDesc, p.Order)

	for _, bad := range []ListParams{{Limit: -1}, {Limit: MaxLimit + 1}, {Order: "sideways"}} {
		_, err := bad.Normalize()
		assert.True(t, errdefs.CodeOf(err) == errdefs.CodeConfiguration, "%+v", bad)
	}
}

func TestPaginate(t *testing.T) {
	all := items(5)
	tests := []struct {
		name    string
		params  ListParams
		want    []string
		hasMore bool
	}{
		{"desc default", ListParams{Limit: 2, Order: OrderDesc}, []string{"it_04", "it_03"}, true},
		{"asc", ListParams{Limit: 2, Order: OrderAsc}, []string{"it_00", "it_01"}, true},
		{"asc after", ListParams{Limit: 2, Order: OrderAsc, After: "it_01"}, []string{"it_02", "it_03"}, true},
		{"asc after last page", ListParams{Limit: 2, Order: OrderAsc, After: "it_03"}, []string{"it_04"}, false},
		{"asc before", ListParams{Limit: 2, Order: OrderAsc, Before: "it_04"}, []string{"it_02", "it_03"}, true},
		{"desc before", ListParams{Limit: 10, Order: OrderDesc, Before: "it_02"}, []string{"it_04", "it_03"}, false},
		{"window", ListParams{Limit: 10, Order: OrderAsc, After: "it_00", Before: "it_03"}, []string{"it_01", "it_02"}, false},
		{"empty window", ListParams{Limit: 10, Order: OrderAsc, After: "it_03", Before: "it_01"}, []string{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := paginate(all, tt.params, key)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(p))
			assert.Equal(t, tt.hasMore, p.HasMore)
			if len(tt.want) > 0 {
				assert.Equal(t, tt.want[0], p.FirstID)
				assert.Equal(t, tt.want[len(tt.want)-1], p.LastID)
			}
		})
	}
}

func TestPaginate_TiesBreakOnID(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	p, err := paginate([]item{{"b", at}, {"a", at}, {"c", at}}, ListParams{Limit: 10, Order: OrderAsc}, key)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids(p))
}

func TestPaginate_UnknownCursor(t *testing.T) {
	_, err := paginate(items(3), ListParams{Limit: 10, Order: OrderAsc, After: "nope"}, key)
	assert.True(t, errdefs.CodeOf(err) == errdefs.CodeConfiguration)
}

func TestVectorStore_Expiry(t *testing.T) {
	created := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	vs := VectorStore{CreatedAt: created, ExpiresAfter: &ExpiresAfter{Anchor: AnchorLastActiveAt, Days: 2}}
	vs.RefreshExpiry()
	require.NotNil(t, vs.ExpiresAt)
	assert.Equal(t, created.Add(48*time.Hour), *vs.ExpiresAt)

	later := created.Add(24 * time.Hour)
	vs.Touch(later)
	assert.Equal(t, later.Add(48*time.Hour), *vs.ExpiresAt)

	vs.ExpiresAfter = nil
	vs.RefreshExpiry()
	assert.Nil(t, vs.ExpiresAt)
}

func TestExpiresAfter_Validate(t *testing.T) {
	assert.NoError(t, (*ExpiresAfter)(nil).Validate())
	assert.NoError(t, (&ExpiresAfter{Anchor: AnchorLastActiveAt, Days: 7}).Validate())
	assert.Error(t, (&ExpiresAfter{Anchor: "created_at", Days: 7}).Validate())
	assert.Error(t, (&ExpiresAfter{Anchor: AnchorLastActiveAt, Days: 0}).Validate())
}

func TestFileCounts_Add(t *testing.T) {
	var c FileCounts
	for _, s := range []FileStatus{FileInProgress, FileCompleted, FileCompleted, FileFailed, FileCancelled} {
		c.Add(s)
	}
	assert.Equal(t, FileCounts{InProgress: 1, Completed: 2, Failed: 1, Cancelled: 1, Total: 5}, c)
}
