// internal/game/automove.go
package game

import (
	"sort"

	"github.com/jason-s-yu/courts/internal/models"
)

// Move is a decision produced by the automatic player.
type Move struct {
	Pass  bool          `json:"pass"`
	Cards []models.Card `json:"cards,omitempty"`
	Score Score         `json:"score"`
}

// ChooseAutoMove picks a greedy, one-ply move for hand against the opponent's last court.
//
// Court pairings (top Hearts for recovery, top non-Hearts for attack) are ranked by the size
// of their score. Without a pairing the highest numbered card is played alone, and failing that
// the player draws. A hand with too few numbered cards per court draws as well.
func ChooseAutoMove(hand []models.Card, opponentCourt *models.Card, rules HouseRules) Move {
	courts := models.Courts(hand)
	numbered := models.Numbered(hand)
	sort.SliceStable(numbered, func(i, j int) bool {
		return numbered[i].Rank > numbered[j].Rank
	})

	// with no courts the ratio is unbounded and never under the gate
	if len(courts) > 0 {
		if float64(len(numbered))/float64(len(courts)) < rules.AutoPassRatio {
			return Move{Pass: true}
		}
	}

	pick := func(recovery bool, count int) []models.Card {
		out := make([]models.Card, 0, count)
		for _, c := range numbered {
			if len(out) == count {
				break
			}
			if c.IsHeart() == recovery {
				out = append(out, c)
			}
		}
		return out
	}

	var candidates []Move
	for _, court := range courts {
		count, ok := CourtCompanions(court.Rank)
		if !ok {
			continue
		}
		for _, recovery := range []bool{true, false} {
			cards := pick(recovery, count)
			if len(cards) != count {
				continue
			}
			play := append([]models.Card{court}, cards...)
			candidates = append(candidates, Move{Cards: play, Score: ScorePlay(play, opponentCourt)})
		}
	}

	if len(candidates) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Score.Points() > candidates[j].Score.Points()
		})
		return candidates[0]
	}

	if len(numbered) > 0 {
		single := []models.Card{numbered[0]}
		return Move{Cards: single, Score: ScorePlay(single, opponentCourt)}
	}
	return Move{Pass: true}
}

// autoMove chooses and applies a move for the player in seat. Assumes lock is held.
func (g *Game) autoMove(seat int) (Move, error) {
	player := g.players[seat]
	opponent := g.players[1-seat]

	move := ChooseAutoMove(player.Cards, opponent.lastCourt(), g.Rules)
	if move.Pass {
		g.draw(seat, "auto")
		return move, nil
	}

	score, err := g.play(seat, move.Cards, "auto")
	if err != nil {
		// candidates are built to satisfy the rules; fall back to drawing if one slips through
		g.log.WithError(err).Warn("automatic move rejected, drawing instead")
		g.draw(seat, "auto")
		return Move{Pass: true}, nil
	}
	move.Score = score
	return move, nil
}
