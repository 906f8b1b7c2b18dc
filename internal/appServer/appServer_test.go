package appServer

import (
	"testing"

	"github.com/schatha/stamford-parking-system-sub001/config"
	"github.com/schatha/stamford-parking-system-sub001/internal/pkg/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPricingPolicy(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.PricingConfig
		wantErr bool
	}{
		{
			name: "defaults",
			cfg:  config.PricingConfig{TaxRate: "0.08", FeePercent: "0.029", FeeFlat: "0.30", MinChargeableHours: "0.5"},
		},
		{
			name:    "not a number",
			cfg:     config.PricingConfig{TaxRate: "eight", FeePercent: "0.029", FeeFlat: "0.30", MinChargeableHours: "0.5"},
			wantErr: true,
		},
		{
			name:    "negative",
			cfg:     config.PricingConfig{TaxRate: "0.08", FeePercent: "0.029", FeeFlat: "-1", MinChargeableHours: "0.5"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy, err := pricingPolicy(&tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			want := pricing.DefaultPolicy()
			assert.True(t, want.TaxRate.Equal(policy.TaxRate))
			assert.True(t, want.FeePercent.Equal(policy.FeePercent))
			assert.True(t, want.FeeFlat.Equal(policy.FeeFlat))
			assert.True(t, want.MinChargeableHours.Equal(policy.MinChargeableHours))
		})
	}
}
