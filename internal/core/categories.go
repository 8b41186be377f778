package core

// DefaultCategories is the category set seeded on first initialization.
// IDs are stable so the SQL seed and the in-memory seed agree.
var DefaultCategories = []Category{
	{ID: "default-food", Name: "Food", Icon: "restaurant", IsExpense: true, IsDefault: true},
	{ID: "default-transport", Name: "Transport", Icon: "directions_car", IsExpense: true, IsDefault: true},
	{ID: "default-shopping", Name: "Shopping", Icon: "shopping_bag", IsExpense: true, IsDefault: true},
	{ID: "default-entertainment", Name: "Entertainment", Icon: "movie", IsExpense: true, IsDefault: true},
	{ID: "default-utilities", Name: "Utilities", Icon: "bolt", IsExpense: true, IsDefault: true},
	{ID: "default-health", Name: "Health", Icon: "favorite", IsExpense: true, IsDefault: true},
	{ID: "default-income", Name: "Income", Icon: "payments", IsExpense: false, IsDefault: true},
	{ID: "default-investment", Name: "Investment", Icon: "trending_up", IsExpense: false, IsDefault: true},
	{ID: "default-other", Name: "Other", Icon: "more_horiz", IsExpense: true, IsDefault: true},
}
