package catalog

// Category is a content category as offered to the user.
type Category struct {
	ID   string
	Name string
}

var fallbackCategories = []Category{
	{ID: "550e8400-e29b-41d4-a716-446655440001", Name: "Traditional Stories"},
	{ID: "550e8400-e29b-41d4-a716-446655440002", Name: "Folk Tales"},
	{ID: "550e8400-e29b-41d4-a716-446655440003", Name: "Traditional Recipes"},
	{ID: "550e8400-e29b-41d4-a716-446655440004", Name: "Historical Landmarks"},
	{ID: "550e8400-e29b-41d4-a716-446655440005", Name: "Cultural Practices"},
	{ID: "550e8400-e29b-41d4-a716-446655440006", Name: "Folk Songs"},
	{ID: "550e8400-e29b-41d4-a716-446655440007", Name: "Traditional Games"},
	{ID: "550e8400-e29b-41d4-a716-446655440008", Name: "Festivals"},
}

// FallbackCategories is offered when the API cannot list categories.
func FallbackCategories() []Category {
	return append([]Category(nil), fallbackCategories...)
}

// CategorySet ...
type CategorySet []Category

// Contains reports whether id names one of the categories.
func (s CategorySet) Contains(id string) bool {
	for _, category := range s {
		if category.ID == id {
			return true
		}
	}
	return false
}
