package handlers

import (
	"context"
	"net/http"
	"strconv"

	cache "havenledger-server/src/db"
	"havenledger-server/src/services"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CacheClearer interface {
	ClearGroup(group cache.CacheGroup)
}

type OrgSyncer interface {
	SyncAll(ctx context.Context, orgID int64) ([]*services.SyncResult, error)
}

func ClearCache(c CacheClearer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		group := cache.CacheGroup(chi.URLParam(r, "group"))
		switch group {
		case cache.OrgConfigGroup, cache.CategoryGroup:
		default:
			http.Error(w, "unknown cache group", http.StatusBadRequest)
			return
		}

		c.ClearGroup(group)
		zap.S().Infof("INFO: Cleared cache group %s", group)
		w.WriteHeader(http.StatusNoContent)
	}
}

// SyncOrganization syncs every active connection of an organization. Per
// connection failures are reported in the results with a 502.
func SyncOrganization(syncer OrgSyncer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orgID, err := strconv.ParseInt(chi.URLParam(r, "org_id"), 10, 64)
		if err != nil || orgID <= 0 {
			http.Error(w, "invalid org id", http.StatusBadRequest)
			return
		}

		results, err := syncer.SyncAll(r.Context(), orgID)
		if results == nil {
			results = []*services.SyncResult{}
		}
		if err != nil {
			zap.S().Warnw("Organization sync finished with errors", "org_id", orgID, "error", err)
			writeJSON(w, http.StatusBadGateway, results)
			return
		}

		writeJSON(w, http.StatusOK, results)
	}
}
