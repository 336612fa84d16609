// Package rating keeps Glicko-2 ratings for players who finish games against each other.
// Each finished game is treated as its own rating period.
package rating

import "math"

const (
	// scale converts between the 1500-based display scale and Glicko-2's internal mu/phi.
	scale = 173.7178

	DefaultRating     = 1500.0
	DefaultDeviation  = 350.0
	DefaultVolatility = 0.06

	// tau constrains how fast volatility may change.
	tau     = 0.5
	epsilon = 0.000001
)

// Outcome scores, from the point of view of the first player passed to Update.
const (
	Win  = 1.0
	Tie  = 0.5
	Loss = 0.0
)

// Rating is a player's standing on the display scale.
type Rating struct {
	Rating     float64 `json:"rating"`
	Deviation  float64 `json:"rating_deviation"`
	Volatility float64 `json:"volatility"`
}

// Default is the rating of a player with no rated games.
func Default() Rating {
	return Rating{Rating: DefaultRating, Deviation: DefaultDeviation, Volatility: DefaultVolatility}
}

// OrDefault fills in unset fields, so a zero Rating behaves like a new player.
func (r Rating) OrDefault() Rating {
	if r.Deviation <= 0 {
		r.Deviation = DefaultDeviation
	}
	if r.Volatility <= 0 {
		r.Volatility = DefaultVolatility
	}
	if r.Rating == 0 {
		r.Rating = DefaultRating
	}
	return r
}

// Update rates one game between a and b. scoreA is Win, Tie or Loss for a; b receives the
// complement. Both new ratings are computed from the old ones.
func Update(a, b Rating, scoreA float64) (Rating, Rating) {
	a, b = a.OrDefault(), b.OrDefault()
	return update(a, b, scoreA), update(b, a, 1-scoreA)
}

func update(r, opp Rating, score float64) Rating {
	mu := (r.Rating - DefaultRating) / scale
	phi := r.Deviation / scale
	muJ := (opp.Rating - DefaultRating) / scale
	phiJ := opp.Deviation / scale

	gJ := g(phiJ)
	e := expected(mu, muJ, gJ)
	v := 1 / (gJ * gJ * e * (1 - e))
	delta := v * gJ * (score - e)

	sigma := volatility(phi, r.Volatility, v, delta)
	phiStar := math.Sqrt(phi*phi + sigma*sigma)
	phiPrime := 1 / math.Sqrt(1/(phiStar*phiStar)+1/v)
	muPrime := mu + phiPrime*phiPrime*gJ*(score-e)

	return Rating{
		Rating:     muPrime*scale + DefaultRating,
		Deviation:  phiPrime * scale,
		Volatility: sigma,
	}
}

func g(phi float64) float64 {
	return 1 / math.Sqrt(1+3*phi*phi/(math.Pi*math.Pi))
}

func expected(mu, muJ, gJ float64) float64 {
	return 1 / (1 + math.Exp(-gJ*(mu-muJ)))
}

// volatility finds the new sigma with the Illinois variant of regula falsi.
func volatility(phi, sigma, v, delta float64) float64 {
	a := math.Log(sigma * sigma)
	f := func(x float64) float64 {
		ex := math.Exp(x)
		d := phi*phi + v + ex
		return ex*(delta*delta-phi*phi-v-ex)/(2*d*d) - (x-a)/(tau*tau)
	}

	A := a
	var B float64
	if delta*delta > phi*phi+v {
		B = math.Log(delta*delta - phi*phi - v)
	} else {
		k := 1.0
		for f(a-k*tau) < 0 {
			k++
		}
		B = a - k*tau
	}

	fA, fB := f(A), f(B)
	for i := 0; i < 100 && math.Abs(B-A) > epsilon; i++ {
		C := A + (A-B)*fA/(fB-fA)
		fC := f(C)
		if fC*fB <= 0 {
			A, fA = B, fB
		} else {
			fA /= 2
		}
		B, fB = C, fC
	}
	return math.Exp(A / 2)
}
