package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/solargrade/solargrade-server/internal/repository/models"
	"github.com/solargrade/solargrade-server/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFixtures = `
vendors:
  - id: sunco
    name: SunCo Solar
    vendor_type: Installer
  - id: brightpanel
    name: Bright Panel
    vendor_type: installer
  - id: fresh
    name: Fresh Start
    vendor_type: installer
reviews:
  - vendor: sunco
    verified: true
    legacy: {communication: 5, install_quality: 5, payment_reliability: 5, timeliness: 5, post_install_support: 5}
  - vendor: sunco
    verified: true
    legacy: {communication: 5, install_quality: 4, payment_reliability: 5, timeliness: 5, post_install_support: 5}
  - vendor: sunco
    verified: true
    ratings:
      - {question: q1, category: communication, rating: 5}
      - {question: q2, category: PTO Time, rating: 1}
  - vendor: brightpanel
    verified: true
    ratings:
      - {question: q1, category: communication, rating: 3}
  - vendor: brightpanel
    verified: true
    ratings:
      - {question: q1, category: communication, rating: 4, weight: 2}
      - {question: q2, category: timeliness, rating: 2}
  - vendor: brightpanel
    verified: true
    ratings:
      - {question: q1, category: communication, rating: 4}
  - vendor: brightpanel
    verified: false
    ratings:
      - {question: q1, category: communication, rating: 1}
  - vendor: fresh
    verified: true
    ratings:
      - {question: q1, category: communication, rating: 5}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func useTempDB(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_PATH", filepath.Join(t.TempDir(), "grades.db"))
	t.Setenv("APP_ENV", "test")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(append([]string{"--env-file", ""}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

// rankRows returns the leaderboard rows keyed by vendor id.
func rankRows(output string) map[string][]string {
	rows := map[string][]string{}
	for _, line := range strings.Split(output, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 7 && fields[0] != "RANK" {
			rows[fields[1]] = fields
		}
	}
	return rows
}

func TestMigrate(t *testing.T) {
	useTempDB(t)

	out, err := execute(t, "migrate")

	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (sqlite3)")
}

func TestSeedPublishAndRank(t *testing.T) {
	useTempDB(t)
	fixtures := writeFile(t, "fixtures.yaml", sampleFixtures)

	out, err := execute(t, "seed", fixtures, "--publish")
	require.NoError(t, err)
	assert.Contains(t, out, "seeded 3 vendors, 8 reviews")
	assert.Contains(t, out, "2 vendors ranked")

	t.Run("first snapshot marks everyone new", func(t *testing.T) {
		out, err := execute(t, "rank")
		require.NoError(t, err)

		rows := rankRows(out)
		require.Len(t, rows, 2)
		assert.Equal(t, "1", rows["sunco"][0])
		assert.Equal(t, "installer", rows["sunco"][2])
		assert.Equal(t, "2", rows["brightpanel"][0])
		assert.Equal(t, "new", rows["sunco"][6])
		assert.NotContains(t, rows, "fresh")
	})

	t.Run("second publish reports zero change", func(t *testing.T) {
		out, err := execute(t, "refresh", "--invalidate-cache=false")
		require.NoError(t, err)
		assert.Contains(t, out, "2 vendors ranked")

		out, err = execute(t, "rank", "--vendor-type", "INSTALLER")
		require.NoError(t, err)
		rows := rankRows(out)
		require.Len(t, rows, 2)
		assert.Equal(t, "0", rows["sunco"][6])
		assert.Equal(t, "0", rows["brightpanel"][6])
	})

	t.Run("grade filter", func(t *testing.T) {
		out, err := execute(t, "rank", "--min-grade", "A")
		require.NoError(t, err)
		rows := rankRows(out)
		require.Len(t, rows, 1)
		assert.Contains(t, rows, "sunco")
	})
}

func TestRankRejectsUnratedFilter(t *testing.T) {
	useTempDB(t)

	_, err := execute(t, "rank", "--min-grade", "NR")

	assert.ErrorIs(t, err, service.ErrInvalidGradeFilter)
}

func TestRankBeforeFirstPublish(t *testing.T) {
	useTempDB(t)

	_, err := execute(t, "rank")

	assert.ErrorIs(t, err, service.ErrNoSnapshot)
}

func TestSeedUnknownVendor(t *testing.T) {
	useTempDB(t)
	fixtures := writeFile(t, "fixtures.yaml", `
reviews:
  - vendor: ghost
    verified: true
    ratings:
      - {question: q1, category: communication, rating: 5}
`)

	_, err := execute(t, "seed", fixtures)

	assert.ErrorIs(t, err, service.ErrVendorNotFound)
}

func TestLoadFixtures(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		f, err := loadFixtures(writeFile(t, "ok.yaml", sampleFixtures))
		require.NoError(t, err)
		assert.Len(t, f.Vendors, 3)
		require.Len(t, f.Reviews, 8)
		require.NotNil(t, f.Reviews[0].Legacy)
		assert.Equal(t, 4, f.Reviews[1].Legacy.InstallQuality)
		assert.Equal(t, 2.0, f.Reviews[4].Ratings[0].Weight)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := loadFixtures(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := loadFixtures(writeFile(t, "bad.yaml", "vendors: [\n"))
		assert.ErrorContains(t, err, "parse fixtures")
	})

	t.Run("reports every invalid row", func(t *testing.T) {
		_, err := loadFixtures(writeFile(t, "invalid.yaml", `
vendors:
  - id: a
  - id: a
  - name: nameless
reviews:
  - verified: true
`))
		require.Error(t, err)
		assert.ErrorContains(t, err, `duplicate id "a"`)
		assert.ErrorContains(t, err, "vendors[2]: id is required")
		assert.ErrorContains(t, err, "reviews[0]: vendor is required")
	})
}

type recordingStore struct {
	vendors []models.Vendor
	subs    []service.ReviewSubmission
	failOn  string
}

func (r *recordingStore) UpsertVendor(ctx context.Context, v models.Vendor) error {
	r.vendors = append(r.vendors, v)
	return nil
}

func (r *recordingStore) SubmitReview(ctx context.Context, sub service.ReviewSubmission) (service.ReviewScore, error) {
	if sub.VendorID == r.failOn {
		return service.ReviewScore{}, errors.New("boom")
	}
	r.subs = append(r.subs, sub)
	return service.ReviewScore{ReviewID: "r"}, nil
}

func TestFixturesApply(t *testing.T) {
	f := &fixtureFile{
		Vendors: []vendorFixture{{ID: "sunco", VendorType: "  Installer "}},
		Reviews: []reviewFixture{
			{Vendor: "sunco", Verified: true, Legacy: &legacyFixture{Communication: 5, InstallQuality: 4, PaymentReliability: 3, Timeliness: 2, PostInstallSupport: 1}},
			{Vendor: "sunco", Ratings: []ratingFixture{{Question: "q1", Category: "communication", Rating: 4}}},
			{Vendor: "broken"},
		},
	}

	t.Run("stops at first failing review", func(t *testing.T) {
		store := &recordingStore{failOn: "broken"}

		stats, err := f.apply(context.Background(), store, store)

		require.Error(t, err)
		assert.ErrorContains(t, err, "reviews[2] for broken")
		assert.Equal(t, seedStats{vendors: 1, reviews: 2}, stats)
		assert.Equal(t, "installer", store.vendors[0].VendorType)

		require.Len(t, store.subs, 2)
		assert.True(t, store.subs[0].Verified)
		require.NotNil(t, store.subs[0].Legacy)
		assert.Equal(t, 3, store.subs[0].Legacy.PaymentReliability)
		assert.Empty(t, store.subs[0].Ratings)
		assert.Nil(t, store.subs[1].Legacy)
		assert.Equal(t, service.RatingEntry{QuestionID: "q1", Category: "communication", Rating: 4}, store.subs[1].Ratings[0])
	})
}

func TestFormatChange(t *testing.T) {
	up, down, same := 2, -1, 0
	assert.Equal(t, "new", formatChange(service.RankEntry{IsNew: true}))
	assert.Equal(t, "+2", formatChange(service.RankEntry{RankChange: &up}))
	assert.Equal(t, "-1", formatChange(service.RankEntry{RankChange: &down}))
	assert.Equal(t, "0", formatChange(service.RankEntry{RankChange: &same}))
}
