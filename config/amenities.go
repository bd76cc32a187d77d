package config

// DefaultAmenityVocabulary is the canonical amenity vocabulary, grouped by category.
// Raw listing amenities are resolved against these names.
func DefaultAmenityVocabulary() []AmenityCategory {
	return []AmenityCategory{
		{Name: "Essentials", Amenities: []string{
			"Wifi", "Essentials", "Hangers", "Bed linens", "Extra pillows and blankets",
			"Hot water", "Shampoo", "Body soap", "Toilet paper",
		}},
		{Name: "Kitchen and dining", Amenities: []string{
			"Kitchen", "Refrigerator", "Microwave", "Dishes and silverware", "Cooking basics",
			"Stove", "Oven", "Dishwasher", "Coffee maker", "Dining table",
		}},
		{Name: "Bathroom", Amenities: []string{
			"Hair dryer", "Bathtub", "Conditioner", "Shower gel",
		}},
		{Name: "Laundry", Amenities: []string{
			"Washer", "Dryer", "Iron", "Laundromat nearby", "Clothing storage",
		}},
		{Name: "Heating and cooling", Amenities: []string{
			"Air conditioning", "Heating", "Indoor fireplace", "Ceiling fan", "Portable fans",
		}},
		{Name: "Entertainment", Amenities: []string{
			"TV", "HDTV", "Cable TV", "Books and reading material", "Sound system", "Game console",
		}},
		{Name: "Safety", Amenities: []string{
			"Smoke alarm", "Carbon monoxide alarm", "Fire extinguisher", "First aid kit",
			"Lock on bedroom door", "Security cameras on property",
		}},
		{Name: "Work", Amenities: []string{
			"Dedicated workspace", "Ethernet connection",
		}},
		{Name: "Parking and facilities", Amenities: []string{
			"Free parking on premises", "Free street parking", "Paid parking off premises",
			"Elevator", "Gym", "Pool", "Hot tub", "EV charger",
		}},
		{Name: "Outdoor", Amenities: []string{
			"Patio or balcony", "Backyard", "BBQ grill", "Outdoor furniture", "Outdoor dining area",
		}},
		{Name: "Services", Amenities: []string{
			"Self check-in", "Keypad", "Lockbox", "Smart lock", "Luggage dropoff allowed",
			"Long term stays allowed", "Pets allowed", "Host greets you", "Private entrance",
		}},
		{Name: "Family", Amenities: []string{
			"Crib", "High chair", "Pack 'n play/Travel crib", "Children’s books and toys",
		}},
	}
}
