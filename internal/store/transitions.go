package store

import "qms/clinic-queue/internal/models"

// transitionMap lists, per target status, the statuses an entry may move from.
var transitionMap = map[models.Status][]models.Status{
	models.StatusInService: {models.StatusWaiting},
	models.StatusCompleted: {models.StatusWaiting, models.StatusInService},
	models.StatusCancelled: {models.StatusWaiting},
}

func ValidTransition(from, to models.Status) bool {
	allowed, ok := transitionMap[to]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == from {
			return true
		}
	}
	return false
}
