package api

import (
	"net/http"
	"strconv"

	"github.com/hackgods/clinic-appointment-booking/internal/appointment"
	"github.com/hackgods/clinic-appointment-booking/internal/notification"
)

func listNotificationsHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuidParam(r, "userID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}

		f := notification.Filter{Type: notification.Type(r.URL.Query().Get("type"))}
		if raw := r.URL.Query().Get("unread"); raw != "" {
			if f.UnreadOnly, err = strconv.ParseBool(raw); err != nil {
				handleServiceError(w, r, &appointment.ValidationError{Fields: []string{"unread: must be a boolean"}})
				return
			}
		}
		if f.Limit, err = intQuery(r, "limit", 0); err != nil {
			handleServiceError(w, r, err)
			return
		}
		if f.Offset, err = intQuery(r, "offset", 0); err != nil {
			handleServiceError(w, r, err)
			return
		}

		notes, err := svc.List(r.Context(), userID, f)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, NotificationListResponse{Notifications: notes})
	}
}

func unreadCountHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuidParam(r, "userID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		n, err := svc.UnreadCount(r.Context(), userID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: int64(n)})
	}
}

func markReadHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuidParam(r, "userID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		n, err := svc.MarkRead(r.Context(), userID, id)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, n)
	}
}

func markAllReadHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuidParam(r, "userID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		n, err := svc.MarkAllRead(r.Context(), userID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}

func deleteNotificationHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuidParam(r, "userID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		id, err := uuidParam(r, "id")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if err := svc.Delete(r.Context(), userID, id); err != nil {
			handleServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func clearNotificationsHandler(svc NotificationService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := uuidParam(r, "userID")
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		n, err := svc.ClearAll(r.Context(), userID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, CountResponse{Count: n})
	}
}
