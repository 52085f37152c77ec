package app

import "strconv"

const (
	statusKeyPrefix = "vote-status:"

	// ProductsPrefix covers every cached product-level view such as rankings.
	ProductsPrefix = "products:"
)

// StatusKey is the cache key for one client's view of a product.
func StatusKey(productID, clientID string) string {
	return StatusPrefix(productID) + clientID
}

// StatusPrefix matches every cached status of a product.
func StatusPrefix(productID string) string {
	return statusKeyPrefix + productID + ":"
}

func RankingKey(limit int) string {
	return ProductsPrefix + "ranking:" + strconv.Itoa(limit)
}
