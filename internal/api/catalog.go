package api

import (
	"net/http"

	"github.com/nerrad567/tuyable-bridge/internal/catalog"
)

// handleCatalog returns the supported products, optionally for one category.
func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	var products []catalog.Product
	if category := r.URL.Query().Get("category"); category != "" {
		products = catalog.Products(category)
		if products == nil {
			writeUnknownCategory(w, category)
			return
		}
	} else {
		products = catalog.All()
	}

	writeJSON(w, http.StatusOK, map[string]any{"products": products, "count": len(products)})
}

func (s *Server) handleCatalogCategories(w http.ResponseWriter, _ *http.Request) {
	categories := catalog.Categories()
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories, "count": len(categories)})
}
