// Package config loads the product catalog and engine tuning from a CUE
// file.
//
// A catalog file looks like:
//
//	catalog: {
//		oneTime:      ["app_premium_feature", "one_apple"]
//		subscription: ["unlimited_popcorn_monthly"]
//		consumable:   "one_apple"
//		hidden:       "app_premium_feature"
//	}
//	engine: {
//		workers:    2
//		drainGrace: "30s"
//	}
package config
