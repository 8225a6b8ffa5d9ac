package habit

// Starter definitions written by onboarding, mirroring the common habit set
// users expect to log on day one. Weekly goals of 0 mean no goal.
func SeedDefinitions() []Definition {
	return []Definition{
		{ID: "workout", Name: "workout", Aliases: []string{"worked out", "exercise", "exercised", "training"}, Unit: UnitCount, WeeklyGoal: 5, Category: "Health & Fitness"},
		{ID: "running", Name: "running", Aliases: []string{"ran", "run", "jog", "jogging"}, Unit: UnitCount, WeeklyGoal: 4, Category: "Health & Fitness"},
		{ID: "yoga", Name: "yoga", Aliases: []string{"did yoga"}, Unit: UnitDuration, WeeklyGoal: 6, Category: "Health & Fitness"},
		{ID: "gym", Name: "gym", Aliases: []string{"went to the gym", "lifted"}, Unit: UnitCount, WeeklyGoal: 4, Category: "Health & Fitness"},
		{ID: "walking", Name: "walking", Aliases: []string{"walked", "walk"}, Unit: UnitCount, Category: "Health & Fitness"},
		{ID: "reading", Name: "reading", Aliases: []string{"read", "read a book"}, Unit: UnitDuration, WeeklyGoal: 7, Category: "Mental & Learning"},
		{ID: "meditating", Name: "meditating", Aliases: []string{"meditated", "meditation"}, Unit: UnitDuration, WeeklyGoal: 7, Category: "Mental & Learning"},
		{ID: "journaling", Name: "journaling", Aliases: []string{"journaled", "wrote in my journal"}, Unit: UnitBoolean, WeeklyGoal: 7, Category: "Mental & Learning"},
		{ID: "studying", Name: "studying", Aliases: []string{"studied", "study"}, Unit: UnitDuration, WeeklyGoal: 5, Category: "Mental & Learning"},
		{ID: "coding", Name: "coding", Aliases: []string{"coded", "programmed", "programming"}, Unit: UnitDuration, WeeklyGoal: 5, Category: "Productivity"},
		{ID: "writing", Name: "writing", Aliases: []string{"wrote"}, Unit: UnitDuration, Category: "Productivity"},
		{ID: "water", Name: "drinking water", Aliases: []string{"water", "drank water", "hydrate", "hydrated"}, Unit: UnitCount, WeeklyGoal: 7, Category: "Lifestyle"},
		{ID: "sleep-early", Name: "sleep early", Aliases: []string{"slept early", "early night"}, Unit: UnitBoolean, WeeklyGoal: 7, Category: "Lifestyle"},
		{ID: "cooking", Name: "cooking", Aliases: []string{"cooked"}, Unit: UnitBoolean, Category: "Lifestyle"},
		{ID: "cleaning", Name: "cleaning", Aliases: []string{"cleaned", "tidied"}, Unit: UnitBoolean, Category: "Lifestyle"},
	}
}
