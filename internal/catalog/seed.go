package catalog

import "example.com/rosters/internal/domain"

// DefaultActivities returns a fresh copy of the school's starting catalog.
func DefaultActivities() []domain.Activity {
	return []domain.Activity{
		{
			Name:            "Chess Club",
			Description:     "Learn strategies and compete in chess tournaments",
			Schedule:        "Fridays, 3:30 PM - 5:00 PM",
			MaxParticipants: 12,
			Participants:    []string{"michael@mergington.edu", "daniel@mergington.edu"},
		},
		{
			Name:            "Programming Class",
			Description:     "Learn programming fundamentals and build software projects",
			Schedule:        "Tuesdays and Thursdays, 3:30 PM - 4:30 PM",
			MaxParticipants: 20,
			Participants:    []string{"emma@mergington.edu", "sophia@mergington.edu"},
		},
		{
			Name:            "Gym Class",
			Description:     "Physical education and sports activities",
			Schedule:        "Mondays, Wednesdays, Fridays, 2:00 PM - 3:00 PM",
			MaxParticipants: 30,
			Participants:    []string{"john@mergington.edu", "olivia@mergington.edu"},
		},
		{
			Name:            "Soccer Team",
			Description:     "Team training, matches, and seasonal tournaments",
			Schedule:        "Tuesdays and Thursdays, 4:00 PM - 6:00 PM",
			MaxParticipants: 25,
			Participants:    []string{"liam@mergington.edu", "noah@mergington.edu"},
		},
		{
			Name:            "Basketball Team",
			Description:     "Practice drills, scrimmages, and inter-school games",
			Schedule:        "Mondays, Wednesdays, Fridays, 4:00 PM - 6:00 PM",
			MaxParticipants: 15,
			Participants:    []string{"ava@mergington.edu", "isabella@mergington.edu"},
		},
		{
			Name:            "Art Club",
			Description:     "Explore drawing, painting, and mixed media projects",
			Schedule:        "Wednesdays, 3:30 PM - 5:00 PM",
			MaxParticipants: 18,
			Participants:    []string{"mia@mergington.edu", "charlotte@mergington.edu"},
		},
		{
			Name:            "Drama Club",
			Description:     "Acting workshops, production rehearsals, and performances",
			Schedule:        "Tuesdays and Thursdays, 5:00 PM - 7:00 PM",
			MaxParticipants: 20,
			Participants:    []string{"amelia@mergington.edu", "harper@mergington.edu"},
		},
		{
			Name:            "Science Club",
			Description:     "Hands-on experiments, science fairs, and guest lectures",
			Schedule:        "Fridays, 4:00 PM - 5:30 PM",
			MaxParticipants: 20,
			Participants:    []string{"evelyn@mergington.edu", "jack@mergington.edu"},
		},
		{
			Name:            "Debate Team",
			Description:     "Prepare arguments, practice public speaking, and compete in debates",
			Schedule:        "Tuesdays and Thursdays, 6:00 PM - 7:30 PM",
			MaxParticipants: 16,
			Participants:    []string{"sophia.r@mergington.edu", "mason@mergington.edu"},
		},
	}
}
