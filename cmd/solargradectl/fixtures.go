package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/solargrade/solargrade-server/internal/repository/models"
	"github.com/solargrade/solargrade-server/internal/service"
	"gopkg.in/yaml.v3"
)

type fixtureFile struct {
	Vendors []vendorFixture `yaml:"vendors"`
	Reviews []reviewFixture `yaml:"reviews"`
}

type vendorFixture struct {
	ID         string `yaml:"id"`
	Name       string `yaml:"name"`
	VendorType string `yaml:"vendor_type"`
}

type reviewFixture struct {
	Vendor   string          `yaml:"vendor"`
	Verified bool            `yaml:"verified"`
	Ratings  []ratingFixture `yaml:"ratings,omitempty"`
	Legacy   *legacyFixture  `yaml:"legacy,omitempty"`
}

type ratingFixture struct {
	Question string  `yaml:"question"`
	Category string  `yaml:"category"`
	Rating   int     `yaml:"rating"`
	Weight   float64 `yaml:"weight,omitempty"`
}

type legacyFixture struct {
	Communication      int `yaml:"communication"`
	InstallQuality     int `yaml:"install_quality"`
	PaymentReliability int `yaml:"payment_reliability"`
	Timeliness         int `yaml:"timeliness"`
	PostInstallSupport int `yaml:"post_install_support"`
}

type seedStats struct {
	vendors int
	reviews int
}

type vendorWriter interface {
	UpsertVendor(ctx context.Context, v models.Vendor) error
}

type reviewSubmitter interface {
	SubmitReview(ctx context.Context, sub service.ReviewSubmission) (service.ReviewScore, error)
}

func loadFixtures(path string) (*fixtureFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixtures: %w", err)
	}

	var f fixtureFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	if err := f.validate(); err != nil {
		return nil, fmt.Errorf("invalid fixtures %s: %w", path, err)
	}
	return &f, nil
}

func (f *fixtureFile) validate() error {
	var errs []error
	seen := make(map[string]bool, len(f.Vendors))
	for i, v := range f.Vendors {
		switch {
		case v.ID == "":
			errs = append(errs, fmt.Errorf("vendors[%d]: id is required", i))
		case seen[v.ID]:
			errs = append(errs, fmt.Errorf("vendors[%d]: duplicate id %q", i, v.ID))
		}
		seen[v.ID] = true
	}
	for i, r := range f.Reviews {
		if r.Vendor == "" {
			errs = append(errs, fmt.Errorf("reviews[%d]: vendor is required", i))
		}
	}
	return errors.Join(errs...)
}

// apply upserts every vendor, then submits every review through the scoring
// service so averages are computed the same way as live submissions.
func (f *fixtureFile) apply(ctx context.Context, vendors vendorWriter, reviews reviewSubmitter) (seedStats, error) {
	var stats seedStats
	for _, v := range f.Vendors {
		err := vendors.UpsertVendor(ctx, models.Vendor{
			ID:         v.ID,
			Name:       v.Name,
			VendorType: service.NormalizeVendorType(v.VendorType),
		})
		if err != nil {
			return stats, fmt.Errorf("upsert vendor %s: %w", v.ID, err)
		}
		stats.vendors++
	}

	for i, r := range f.Reviews {
		if _, err := reviews.SubmitReview(ctx, r.submission()); err != nil {
			return stats, fmt.Errorf("reviews[%d] for %s: %w", i, r.Vendor, err)
		}
		stats.reviews++
	}
	return stats, nil
}

func (r reviewFixture) submission() service.ReviewSubmission {
	sub := service.ReviewSubmission{VendorID: r.Vendor, Verified: r.Verified}
	for _, e := range r.Ratings {
		sub.Ratings = append(sub.Ratings, service.RatingEntry{
			QuestionID: e.Question,
			Category:   e.Category,
			Rating:     e.Rating,
			Weight:     e.Weight,
		})
	}
	if r.Legacy != nil {
		sub.Legacy = &service.LegacyRatings{
			Communication:      r.Legacy.Communication,
			InstallQuality:     r.Legacy.InstallQuality,
			PaymentReliability: r.Legacy.PaymentReliability,
			Timeliness:         r.Legacy.Timeliness,
			PostInstallSupport: r.Legacy.PostInstallSupport,
		}
	}
	return sub
}
