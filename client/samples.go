package client

import (
	"time"

	"github.com/iradukundapaci/communiserver-sub002/core/activity"
)

var sampleActivities = []activity.Activity{
	{
		ID:          "sample-1",
		Title:       "Monthly Umuganda",
		Description: "Community work: cleaning the village roads and drainage channels.",
		Date:        time.Date(2025, time.March, 29, 8, 0, 0, 0, time.UTC),
	},
	{
		ID:          "sample-2",
		Title:       "Tree planting",
		Description: "Planting fruit trees along the cell boundaries.",
		Date:        time.Date(2025, time.February, 22, 8, 0, 0, 0, time.UTC),
	},
	{
		ID:          "sample-3",
		Title:       "Kitchen gardens",
		Description: "Building kitchen gardens for the families of the isibo.",
		Date:        time.Date(2025, time.January, 25, 8, 0, 0, 0, time.UTC),
	},
}

// SampleActivities returns up to size static activities, shown when the API is unavailable.
func SampleActivities(size int) []activity.Activity {
	n := len(sampleActivities)
	if size > 0 && size < n {
		n = size
	}
	acts := make([]activity.Activity, n)
	copy(acts, sampleActivities)
	return acts
}
