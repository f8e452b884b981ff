package services

import (
	"math"

	"codeisles-arena/models"
)

// EloK is the maximum rating swing of a single battle.
const EloK = 32

// eloDelta returns the points the winner gains and the loser gives up.
// Equal ratings move 16 points; an upset moves more, an expected win less.
func eloDelta(winnerRating, loserRating int) int {
	expected := 1 / (1 + math.Pow(10, float64(loserRating-winnerRating)/400))
	return int(math.Round(EloK * (1 - expected)))
}

// applyResult updates both profiles for one decided battle.
func applyResult(winner, loser *models.Player) int {
	delta := eloDelta(winner.Rating, loser.Rating)

	winner.Rating += delta
	winner.Wins++
	winner.Matches++

	loser.Rating -= delta
	if loser.Rating < 0 {
		loser.Rating = 0
	}
	loser.Losses++
	loser.Matches++

	return delta
}
