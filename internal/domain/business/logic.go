package business

import (
	"math"

	"townsim/internal/domain/town"
)

const (
	MinTouristCapacity    = 5
	TouristsPerPopulation = 2

	RewardPerTourist    = 2
	LongTripDistance    = 1000
	DistanceRewardUnit  = 100
	VisitorsPerGrowth   = 50
	GrowthPopulationDiv = 10
)

// MaxTourists is the general "can spawn more" gate. It is deliberately
// independent of the configurable hard capacity in the town service.
func MaxTourists(population int) int {
	return max(MinTouristCapacity, population*TouristsPerPopulation)
}

type Visit struct {
	DestinationTownID string
	OriginTownID      string
	TouristCount      int
	Distance          float64
	Reward            int
}

// ProcessTouristVisit records touristCount visitors from originTownID on the
// destination and returns the reward earned for the trip.
func ProcessTouristVisit(dest *town.Town, originTownID string, originPos town.Position, touristCount int) Visit {
	for i := 0; i < touristCount; i++ {
		dest.RecordVisitor(originTownID)
	}
	d := dest.Position.DistanceTo(originPos)
	return Visit{
		DestinationTownID: dest.ID,
		OriginTownID:      originTownID,
		TouristCount:      touristCount,
		Distance:          d,
		Reward:            VisitReward(touristCount, d),
	}
}

func VisitReward(touristCount int, distance float64) int {
	reward := touristCount * RewardPerTourist
	if distance > LongTripDistance {
		reward += int(math.Floor(distance / DistanceRewardUnit))
	}
	return reward
}

func PopulationGrowth(currentPopulation int, totalVisitors int) int {
	return min(totalVisitors/VisitorsPerGrowth, max(1, currentPopulation/GrowthPopulationDiv))
}
