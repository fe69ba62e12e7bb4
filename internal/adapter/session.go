package adapter

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/MrRuperto3/TAO-App/internal/logging"
	"github.com/MrRuperto3/TAO-App/internal/ratelimit"
)

// raoPerTao converts on-chain RAO amounts (10^9 per unit) to TAO or alpha
var raoPerTao = decimal.New(1, 9)

// emission is reported in parts per billion of total block emission
var emissionPPBPerPct = decimal.New(1, 7)

// Session is one ingestion run against Taostats. Its FetchCache lives only
// as long as the session, so repeated lookups within a run hit the network once.
type Session struct {
	client *TaostatsClient
	cache  *FetchCache
}

// Cache returns the session's fetch cache
func (s *Session) Cache() *FetchCache {
	return s.cache
}

// StakeBalance is one (netuid, hotkey) stake of the wallet
type StakeBalance struct {
	Netuid   int
	Hotkey   string
	Alpha    decimal.Decimal // alpha units, or TAO for root
	ValueTao decimal.Decimal
}

// SubnetStats is the daily metric row for one subnet. Nil fields were not
// reported upstream.
type SubnetStats struct {
	Netuid        int
	Flow24h       *decimal.Decimal // RAO
	EmissionPct   *decimal.Decimal
	Price         *decimal.Decimal // TAO per alpha
	Liquidity     *decimal.Decimal // TAO
	TaoVolume24h  *decimal.Decimal // TAO
	PriceChange1d *decimal.Decimal
	PriceChange1w *decimal.Decimal
	PriceChange1m *decimal.Decimal
}

func (s *Session) rows(ctx context.Context, endpoint string, query url.Values, priority ratelimit.Priority) ([]row, error) {
	body, err := s.client.get(ctx, s.cache, endpoint, query, priority)
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows(body)
	if err != nil {
		return nil, fmt.Errorf("taostats %s: %w", endpoint, err)
	}
	return rows, nil
}

// TaoPriceUSD returns the latest TAO/USD price
func (s *Session) TaoPriceUSD(ctx context.Context) (decimal.Decimal, error) {
	rows, err := s.rows(ctx, EndpointPrice, url.Values{"asset": {"tao"}}, ratelimit.PriorityHigh)
	if err != nil {
		return decimal.Zero, err
	}
	for _, r := range rows {
		if price, ok := r.decimalField("price", "price_usd", "usd"); ok {
			return price, nil
		}
	}
	return decimal.Zero, fmt.Errorf("taostats %s: no price in response", EndpointPrice)
}

// FreeBalance returns the unstaked balance of address in TAO.
// An unknown account has a zero balance.
func (s *Session) FreeBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	rows, err := s.rows(ctx, EndpointAcct, url.Values{"address": {address}}, ratelimit.PriorityHigh)
	if err != nil {
		return decimal.Zero, err
	}
	for _, r := range rows {
		if rao, ok := r.decimalField("balance_free", "free"); ok {
			return rao.Div(raoPerTao), nil
		}
	}
	return decimal.Zero, nil
}

// Stakes returns every stake held by coldkey. Rows without a netuid are dropped.
func (s *Session) Stakes(ctx context.Context, coldkey string) ([]StakeBalance, error) {
	query := url.Values{"coldkey": {coldkey}, "limit": {strconv.Itoa(500)}}
	rows, err := s.rows(ctx, EndpointStakes, query, ratelimit.PriorityHigh)
	if err != nil {
		return nil, err
	}

	log := logging.FromContext(ctx)
	out := make([]StakeBalance, 0, len(rows))
	for _, r := range rows {
		netuid, ok := r.intField("netuid", "subnet_id")
		if !ok || netuid < 0 {
			log.WithField("endpoint", EndpointStakes).Warn("skipping stake row without netuid")
			continue
		}
		hotkey, _ := r.stringField("hotkey", "hotkey_ss58")
		alpha, _ := r.decimalField("balance", "alpha_balance")
		value, ok := r.decimalField("balance_as_tao", "value_tao")
		if !ok {
			value = alpha
		}

		out = append(out, StakeBalance{
			Netuid:   netuid,
			Hotkey:   hotkey,
			Alpha:    alpha.Div(raoPerTao),
			ValueTao: value.Div(raoPerTao),
		})
	}
	return out, nil
}

// SubnetStats returns the metric row for netuid. The pool endpoint is
// required; when the subnet endpoint fails, flow and emission stay nil so a
// later run can fill them in.
func (s *Session) SubnetStats(ctx context.Context, netuid int) (*SubnetStats, error) {
	query := url.Values{"netuid": {strconv.Itoa(netuid)}}

	poolRows, err := s.rows(ctx, EndpointPool, query, ratelimit.PriorityLow)
	if err != nil {
		return nil, err
	}
	pool := pickRow(poolRows, netuid)
	if pool == nil {
		return nil, fmt.Errorf("taostats %s: no row for netuid %d", EndpointPool, netuid)
	}

	stats := &SubnetStats{
		Netuid:        netuid,
		Price:         optional(pool.decimalField("price")),
		Liquidity:     optionalRao(pool.decimalField("liquidity", "total_tao")),
		TaoVolume24h:  optionalRao(pool.decimalField("tao_volume_24_hr", "tao_volume_24h")),
		PriceChange1d: optional(pool.decimalField("price_change_1_day")),
		PriceChange1w: optional(pool.decimalField("price_change_1_week")),
		PriceChange1m: optional(pool.decimalField("price_change_1_month")),
	}

	subnetRows, err := s.rows(ctx, EndpointSubnet, query, ratelimit.PriorityLow)
	if err != nil {
		logging.FromContext(ctx).WithError(err).WithField("netuid", netuid).Warn("subnet stats incomplete")
		return stats, nil
	}
	if subnet := pickRow(subnetRows, netuid); subnet != nil {
		stats.Flow24h = optional(subnet.decimalField("net_flow_1_day", "tao_flow_24h", "flow_24h"))
		if pct, ok := subnet.decimalField("emission_pct"); ok {
			stats.EmissionPct = &pct
		} else if ppb, ok := subnet.decimalField("emission"); ok {
			pct := ppb.Div(emissionPPBPerPct)
			stats.EmissionPct = &pct
		}
	}
	return stats, nil
}

// pickRow returns the row for netuid, or the only row when it carries no netuid
func pickRow(rows []row, netuid int) row {
	for _, r := range rows {
		if n, ok := r.intField("netuid", "subnet_id"); ok && n == netuid {
			return r
		}
	}
	if len(rows) == 1 {
		if _, ok := rows[0].intField("netuid", "subnet_id"); !ok {
			return rows[0]
		}
	}
	return nil
}

func optional(d decimal.Decimal, ok bool) *decimal.Decimal {
	if !ok {
		return nil
	}
	return &d
}

func optionalRao(d decimal.Decimal, ok bool) *decimal.Decimal {
	if !ok {
		return nil
	}
	v := d.Div(raoPerTao)
	return &v
}
