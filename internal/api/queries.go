package api

import (
	"bytes"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/meridian-os/appscope/internal/pkginfo"
	"github.com/meridian-os/appscope/internal/storage"
)

// handleCheck implements POST /v1/visibility/check.
func (d *Dependencies) handleCheck(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req CheckRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.TargetPackage == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "target_package is required"})
		return
	}

	target := d.State.Lookup(req.TargetPackage)
	if target == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "unknown target package"})
		return
	}

	callerUID := pkginfo.UID(req.CallerUID)
	callerSetting := d.State.LookupUID(callerUID)
	filtered := d.Filter.ShouldFilter(callerUID, callerSetting, target, pkginfo.UserID(req.UserID))

	eventID := uuid.New().String()
	verdict := "VISIBLE"
	if filtered {
		verdict = "BLOCKED"
	}
	callerPackage := ""
	if callerSetting != nil {
		callerPackage = callerSetting.Name
	}
	d.Writer.Write(&storage.VisibilityEvent{
		EventID:       eventID,
		Timestamp:     start,
		CallerUID:     req.CallerUID,
		CallerPackage: callerPackage,
		TargetUID:     int(pkginfo.UIDOf(pkginfo.UserID(req.UserID), target.AppID)),
		TargetPackage: target.Name,
		UserID:        req.UserID,
		Filtered:      filtered,
		Verdict:       verdict,
		Source:        "api",
		LatencyMs:     float32(time.Since(start)) / float32(time.Millisecond),
	})

	writeJSON(w, http.StatusOK, CheckResponse{EventID: eventID, Filtered: filtered})
}

// handleGrant implements POST /v1/visibility/grant.
func (d *Dependencies) handleGrant(w http.ResponseWriter, r *http.Request) {
	var req GrantRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	d.Filter.GrantImplicitAccess(pkginfo.UID(req.RecipientUID), pkginfo.UID(req.VisibleUID))
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleWhitelist implements GET /v1/visibility/whitelist/{package}.
func (d *Dependencies) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("package")
	target := d.State.Lookup(name)
	if target == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "unknown package"})
		return
	}

	var resp WhitelistResponse
	d.State.RunWithState(func(settings map[string]*pkginfo.Setting, users []pkginfo.User) {
		userIDs := make([]pkginfo.UserID, 0, len(users))
		for _, u := range users {
			userIDs = append(userIDs, u.ID)
		}
		whitelist := d.Filter.VisibilityWhitelist(target, userIDs, settings)
		if whitelist == nil {
			resp.VisibleToAll = true
			return
		}
		resp.Whitelist = make(map[int][]int, len(whitelist))
		for userID, appIDs := range whitelist {
			ids := make([]int, 0, len(appIDs))
			for _, appID := range appIDs {
				ids = append(ids, int(appID))
			}
			resp.Whitelist[int(userID)] = ids
		}
	})
	writeJSON(w, http.StatusOK, resp)
}

// handleAddPackage implements POST /api/appscope/packages.
func (d *Dependencies) handleAddPackage(w http.ResponseWriter, r *http.Request) {
	var req AddPackageRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if req.Setting.Name == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "setting.name is required"})
		return
	}
	if req.Setting.Pkg != nil && req.Setting.Pkg.Name == "" {
		req.Setting.Pkg.Name = req.Setting.Name
	}

	setting := &req.Setting
	prior := d.State.Upsert(setting)
	d.Filter.AddPackage(setting, req.Replace && prior != nil)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleRemovePackage implements DELETE /api/appscope/packages/{package}.
func (d *Dependencies) handleRemovePackage(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("package")
	setting := d.State.Remove(name)
	if setting == nil {
		writeJSON(w, http.StatusNotFound, ErrorResp{Detail: "unknown package"})
		return
	}
	d.Filter.RemovePackage(setting)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUsersChanged implements PUT /api/appscope/users.
func (d *Dependencies) handleUsersChanged(w http.ResponseWriter, r *http.Request) {
	var req UsersRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	if len(req.Users) == 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "users must be non-empty"})
		return
	}
	users := make([]pkginfo.User, 0, len(req.Users))
	for _, id := range req.Users {
		users = append(users, pkginfo.User{ID: pkginfo.UserID(id)})
	}
	d.State.SetUsers(users)
	d.Filter.OnUsersChanged()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleDumpQueries implements GET /api/appscope/queries. The optional
// app_id query parameter restricts output to one identity.
func (d *Dependencies) handleDumpQueries(w http.ResponseWriter, r *http.Request) {
	var filteringAppID *pkginfo.AppID
	if raw := r.URL.Query().Get("app_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "app_id must be an integer"})
			return
		}
		appID := pkginfo.AppID(id)
		filteringAppID = &appID
	}

	// Snapshot the appId -> names relation before entering the dump; expand
	// runs while the filter holds the package-manager lock.
	namesByAppID := make(map[pkginfo.AppID][]string)
	d.State.RunWithState(func(settings map[string]*pkginfo.Setting, _ []pkginfo.User) {
		for _, setting := range settings {
			namesByAppID[setting.AppID] = append(namesByAppID[setting.AppID], setting.Name)
		}
	})
	expand := func(appID pkginfo.AppID) string {
		names := namesByAppID[appID]
		switch len(names) {
		case 0:
			return "[unknown app id " + strconv.Itoa(int(appID)) + "]"
		case 1:
			return names[0]
		default:
			sort.Strings(names)
			return "[" + strings.Join(names, ",") + "]"
		}
	}

	var buf bytes.Buffer
	d.Filter.DumpQueries(&buf, filteringAppID, d.State.UserIDs(), expand)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleLogging implements POST /api/appscope/logging.
func (d *Dependencies) handleLogging(w http.ResponseWriter, r *http.Request) {
	var req LoggingRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResp{Detail: "Invalid JSON body"})
		return
	}
	d.Filter.FeatureConfig().EnableLogging(pkginfo.AppID(req.AppID), req.Enabled)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
