package models

import "time"

// SubnetMetricSnapshot holds daily aggregates for one subnet.
// Rows are upserted on (day, netuid); a later ingestion may fill missing fields.
type SubnetMetricSnapshot struct {
	Day           string    `json:"day" db:"day"` // UTC date, YYYY-MM-DD
	Netuid        int       `json:"netuid" db:"netuid"`
	Flow24h       *string   `json:"flow24h" db:"flow_24h"`
	EmissionPct   *string   `json:"emissionPct" db:"emission_pct"`
	Price         *string   `json:"price" db:"price"`
	Liquidity     *string   `json:"liquidity" db:"liquidity"`
	TaoVolume24h  *string   `json:"taoVolume24h" db:"tao_volume_24h"`
	PriceChange1d *string   `json:"priceChange1d" db:"price_change_1d"`
	PriceChange1w *string   `json:"priceChange1w" db:"price_change_1w"`
	PriceChange1m *string   `json:"priceChange1m" db:"price_change_1m"`
	UpdatedAt     time.Time `json:"updatedAt" db:"updated_at"`
}
