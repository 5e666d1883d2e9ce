// Package synth generates reproducible synthetic banking data.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/opensource-finance/txmon/internal/domain"
)

// DefaultCustomers is the customer count used when Config.Customers is zero.
const DefaultCustomers = 3000

// Config controls a generation pass.
type Config struct {
	Customers int   `json:"customers" validate:"gte=0,lte=1000000"`
	Seed      int64 `json:"seed"`

	// BaseDate is the day all transactions are booked on. It also bounds
	// account opening dates. Zero means today (UTC).
	BaseDate time.Time `json:"baseDate"`
}

var (
	countries        = []string{"AZ", "TR", "GE", "DE", "GB", "US"}
	countryWeights   = []float64{0.85, 0.05, 0.03, 0.03, 0.02, 0.02}
	riskRatings      = []domain.RiskRating{domain.RiskLow, domain.RiskMedium, domain.RiskHigh}
	riskWeights      = []float64{0.75, 0.2, 0.05}
	accountTypes     = []string{"savings", "checking"}
	currencies       = []string{"AZN", "USD", "EUR"}
	currencyWeights  = []float64{0.7, 0.2, 0.1}
	accountsWeights  = []float64{0.4, 0.5, 0.1} // 1, 2 or 3 accounts
	txCountWeights   = []float64{0.2, 0.7, 0.1} // 1, 2 or 3 transactions
	txTypes          = []string{"ATM", "POS", "TRANSFER"}
	txTypeWeights    = []float64{0.3, 0.4, 0.3}
	homeCountryShare = 0.85

	firstNames = []string{"Ali", "Leyla", "Elmar", "Aysel", "Mahir", "Nigar",
		"Tural", "Sevda", "Kamran", "Gulnar", "Ahmed",
		"Ismayil", "Semed", "Rashad", "Amina"}
	lastNames = []string{"Mammadov", "Huseynova", "Aliyev", "Guliyev",
		"Ismayilova", "Rzayev", "Suleymanov",
		"Abdullayeva", "Quliyev", "Hasanova"}

	dobStart = time.Date(1960, 1, 1, 0, 0, 0, 0, time.UTC)
	dobEnd   = time.Date(2005, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Generator produces snapshots. The same Config always yields the same
// snapshot.
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// New creates a generator for cfg.
func New(cfg Config) *Generator {
	if cfg.Customers == 0 {
		cfg.Customers = DefaultCustomers
	}
	if cfg.BaseDate.IsZero() {
		cfg.BaseDate = time.Now().UTC()
	}
	y, m, d := cfg.BaseDate.Date()
	cfg.BaseDate = time.Date(y, m, d, 0, 0, 0, 0, cfg.BaseDate.Location())

	seed := uint64(cfg.Seed)
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Generate builds customers, their accounts and the accounts' transactions.
func Generate(cfg Config) *domain.Snapshot {
	return New(cfg).Snapshot()
}

// Snapshot runs the generator once.
func (g *Generator) Snapshot() *domain.Snapshot {
	snap := &domain.Snapshot{
		Customers: g.customers(),
	}
	snap.Accounts = g.accounts(snap.Customers)
	snap.Transactions = g.transactions(snap.Customers, snap.Accounts)
	return snap
}

func (g *Generator) customers() []domain.Customer {
	out := make([]domain.Customer, g.cfg.Customers)
	for i := range out {
		out[i] = domain.Customer{
			ID:          fmt.Sprintf("CUST%04d", i+1),
			FullName:    pick(g.rng, firstNames) + " " + pick(g.rng, lastNames),
			DateOfBirth: g.dayBetween(dobStart, dobEnd),
			Country:     countries[g.weighted(countryWeights)],
			RiskRating:  riskRatings[g.weighted(riskWeights)],
		}
	}
	return out
}

func (g *Generator) accounts(customers []domain.Customer) []domain.Account {
	var out []domain.Account
	for i := range customers {
		c := &customers[i]
		n := g.weighted(accountsWeights) + 1
		for j := 0; j < n; j++ {
			out = append(out, domain.Account{
				ID:          fmt.Sprintf("ACC%05d", len(out)+1),
				CustomerID:  c.ID,
				AccountType: pick(g.rng, accountTypes),
				Currency:    currencies[g.weighted(currencyWeights)],
				Balance:     round2(g.uniform(100, 100000)),
				OpenedDate:  g.dayBetween(c.DateOfBirth.AddDate(18, 0, 0), g.cfg.BaseDate),
			})
		}
	}
	return out
}

func (g *Generator) transactions(customers []domain.Customer, accounts []domain.Account) []domain.Transaction {
	home := make(map[string]string, len(customers))
	for _, c := range customers {
		home[c.ID] = c.Country
	}

	var out []domain.Transaction
	for i := range accounts {
		a := &accounts[i]
		n := g.weighted(txCountWeights) + 1
		for j := 0; j < n; j++ {
			out = append(out, domain.Transaction{
				ID:        fmt.Sprintf("TXN%07d", len(out)+1),
				AccountID: a.ID,
				Timestamp: g.cfg.BaseDate.Add(time.Duration(g.rng.IntN(86400)) * time.Second),
				Type:      txTypes[g.weighted(txTypeWeights)],
				Amount:    g.amount(),
				Currency:  a.Currency,
				Country:   g.txCountry(home[a.CustomerID]),
			})
		}
	}
	return out
}

// amount draws from three bands: small and frequent, medium, large and rare.
func (g *Generator) amount() float64 {
	r := g.rng.Float64()
	switch {
	case r < 0.8:
		return round2(g.uniform(1, 200))
	case r < 0.95:
		return round2(g.uniform(200, 2000))
	default:
		return round2(g.uniform(2000, 20000))
	}
}

func (g *Generator) txCountry(home string) string {
	if g.rng.Float64() < homeCountryShare {
		return home
	}
	foreign := make([]string, 0, len(countries)-1)
	for _, c := range countries {
		if c != home {
			foreign = append(foreign, c)
		}
	}
	return pick(g.rng, foreign)
}

// weighted returns an index into weights, chosen proportionally.
func (g *Generator) weighted(weights []float64) int {
	var total float64
	for _, w := range weights {
		total += w
	}
	r := g.rng.Float64() * total
	for i, w := range weights {
		if r < w {
			return i
		}
		r -= w
	}
	return len(weights) - 1
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// dayBetween picks a whole day in [start, end]. An inverted range yields start.
func (g *Generator) dayBetween(start, end time.Time) time.Time {
	days := int(end.Sub(start).Hours() / 24)
	if days <= 0 {
		return start
	}
	return start.AddDate(0, 0, g.rng.IntN(days+1))
}

func pick[T any](rng *rand.Rand, xs []T) T {
	return xs[rng.IntN(len(xs))]
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
