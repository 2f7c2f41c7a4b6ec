package subscription

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/billforge/billforge/pkg/pricing"
)

// PlansSource loads the plan catalog at engine construction time.
type PlansSource interface {
	Load(ctx context.Context) (map[string]Plan, error)
}

// StaticPlans is a PlansSource over an in-code plan list, used in tests and
// small deployments.
type StaticPlans []Plan

func (s StaticPlans) Load(_ context.Context) (map[string]Plan, error) {
	plans := make(map[string]Plan, len(s))
	for _, plan := range s {
		plans[plan.ID] = plan
	}
	return plans, nil
}

// YAMLPlans loads the catalog from a YAML file so plan changes ship as
// config, not code.
type YAMLPlans struct {
	Path string
}

type yamlPlanFile struct {
	Plans []yamlPlan `yaml:"plans"`
}

type yamlPlan struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       struct {
		Amount   int64  `yaml:"amount"`
		Currency string `yaml:"currency"`
	} `yaml:"price"`
	PriceType string `yaml:"price_type"`
	Interval  struct {
		Unit  string `yaml:"unit"`
		Count int    `yaml:"count"`
	} `yaml:"interval"`
	Trial *struct {
		Unit  string `yaml:"unit"`
		Count int    `yaml:"count"`
	} `yaml:"trial"`
	Meter     string `yaml:"meter"`
	UnitPrice int64  `yaml:"unit_price"`
	Tiers     []struct {
		From      int64 `yaml:"from"`
		UpTo      int64 `yaml:"up_to"`
		UnitPrice int64 `yaml:"unit_price"`
		FlatFee   int64 `yaml:"flat_fee"`
	} `yaml:"tiers"`
	ProviderPriceIDs map[string]string `yaml:"provider_price_ids"`
	Active           bool              `yaml:"active"`
	Public           bool              `yaml:"public"`
}

func (y YAMLPlans) Load(_ context.Context) (map[string]Plan, error) {
	raw, err := os.ReadFile(y.Path)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	var file yamlPlanFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	plans := make(map[string]Plan, len(file.Plans))
	for _, p := range file.Plans {
		plan := Plan{
			ID:          p.ID,
			Name:        p.Name,
			Description: p.Description,
			Price:       pricing.Money{Amount: p.Price.Amount, Currency: p.Price.Currency},
			PriceType:   pricing.PriceType(p.PriceType),
			Interval: pricing.Interval{
				Unit:  pricing.IntervalUnit(p.Interval.Unit),
				Count: p.Interval.Count,
			},
			Meter:            p.Meter,
			UnitPrice:        p.UnitPrice,
			ProviderPriceIDs: p.ProviderPriceIDs,
			Active:           p.Active,
			Public:           p.Public,
		}
		if p.Trial != nil {
			plan.Trial = &pricing.Interval{
				Unit:  pricing.IntervalUnit(p.Trial.Unit),
				Count: p.Trial.Count,
			}
		}
		for _, tier := range p.Tiers {
			plan.Tiers = append(plan.Tiers, pricing.Tier{
				From:      tier.From,
				UpTo:      tier.UpTo,
				UnitPrice: tier.UnitPrice,
				FlatFee:   tier.FlatFee,
			})
		}
		plans[plan.ID] = plan
	}
	return plans, nil
}

// validatePlans rejects an inconsistent catalog before any of it is served.
func validatePlans(plans map[string]Plan) error {
	for planID, plan := range plans {
		if plan.ID != planID {
			return fmt.Errorf("%w: map key %s != plan ID %s", ErrInvalidPlanConfiguration, planID, plan.ID)
		}
		if err := plan.Validate(); err != nil {
			return err
		}
	}
	return nil
}
