package v1

import (
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/config"
	"github.com/shenikar/incident_reporting_system/internal/models"
	"github.com/shenikar/incident_reporting_system/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	incidentService service.IncidentService
	userService     service.UserService
	authService     service.AuthService
	tokens          TokenParser
	logger          *logrus.Logger
	validate        *validator.Validate
	cfg             *config.Config
}

func NewHandler(
	incidentService service.IncidentService,
	userService service.UserService,
	authService service.AuthService,
	tokens TokenParser,
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		incidentService: incidentService,
		userService:     userService,
		authService:     authService,
		tokens:          tokens,
		logger:          logger,
		validate:        validator.New(),
		cfg:             cfg,
	}
}

// bindJSON разбирает и проверяет тело запроса. false - ответ уже отправлен.
func (h *Handler) bindJSON(c *gin.Context, log *logrus.Entry, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func parseIncidentID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return uuid.Nil, false
	}
	return id, true
}

// @Summary Register a new user
// @Tags Auth
// @Accept json
// @Produce json
// @Param user body RegisterRequest true "Registration request"
// @Success 201 {object} AuthResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 409 {object} map[string]string "Email already registered"
// @Router /auth/register [post]
func (h *Handler) register(c *gin.Context) {
	log := h.logger.WithField("method", "register")
	var input RegisterRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	result, err := h.authService.Register(c.Request.Context(), models.RegisterInput{
		Name: input.Name, Email: input.Email, Password: input.Password,
	})
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, AuthResponse{Token: result.Token, User: ModelToUserResponse(result.User)})
}

// @Summary Log in
// @Tags Auth
// @Accept json
// @Produce json
// @Param credentials body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse
// @Failure 400 {object} map[string]string "Invalid request body"
// @Failure 401 {object} map[string]string "Invalid credentials"
// @Router /auth/login [post]
func (h *Handler) login(c *gin.Context) {
	log := h.logger.WithField("method", "login")
	var input LoginRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	result, err := h.authService.Login(c.Request.Context(), models.LoginInput{Email: input.Email, Password: input.Password})
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, AuthResponse{Token: result.Token, User: ModelToUserResponse(result.User)})
}

// @Summary Create the first superadmin
// @Description One-time setup. Requires API key.
// @Tags Auth
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param user body RegisterRequest true "Superadmin account"
// @Success 201 {object} UserResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 409 {object} map[string]string "Superadmin already exists"
// @Router /auth/setup-superadmin [post]
func (h *Handler) setupSuperadmin(c *gin.Context) {
	log := h.logger.WithField("method", "setupSuperadmin")
	var input RegisterRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	user, err := h.authService.SetupSuperadmin(c.Request.Context(), models.RegisterInput{
		Name: input.Name, Email: input.Email, Password: input.Password,
	})
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToUserResponse(user))
}

// @Summary Create an admin account
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param user body RegisterRequest true "Admin account"
// @Success 201 {object} UserResponse
// @Failure 403 {object} map[string]string "Superadmin only"
// @Failure 409 {object} map[string]string "Email already registered"
// @Router /auth/admins [post]
func (h *Handler) createAdmin(c *gin.Context) {
	log := h.logger.WithField("method", "createAdmin")
	var input RegisterRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	user, err := h.authService.CreateAdmin(c.Request.Context(), principalFrom(c), models.RegisterInput{
		Name: input.Name, Email: input.Email, Password: input.Password,
	})
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToUserResponse(user))
}

// @Summary Promote a user to admin
// @Tags Auth
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param user body PromoteRequest true "User email"
// @Success 200 {object} UserResponse
// @Failure 403 {object} map[string]string "Superadmin only"
// @Failure 404 {object} map[string]string "User not found"
// @Failure 409 {object} map[string]string "Already an admin"
// @Router /auth/promote [post]
func (h *Handler) promoteToAdmin(c *gin.Context) {
	log := h.logger.WithField("method", "promoteToAdmin")
	var input PromoteRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	user, err := h.authService.PromoteToAdmin(c.Request.Context(), principalFrom(c), input.Email)
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToUserResponse(user))
}

// @Summary Report a new incident
// @Description Accepts JSON or multipart/form-data with up to MEDIA_MAX_FILES files in the "media" field.
// @Description A report close to a recent one of the same type is linked to it as a duplicate.
// @Tags Incidents
// @Accept json,mpfd
// @Produce json
// @Security BearerAuth
// @Param incident body CreateIncidentRequest true "Incident report"
// @Success 201 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid request body, validation error or rejected media"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [post]
func (h *Handler) createIncident(c *gin.Context) {
	log := h.logger.WithField("method", "createIncident")
	var input CreateIncidentRequest

	if err := c.ShouldBind(&input); err != nil {
		log.WithError(err).Warn("Failed to bind request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var files []*multipart.FileHeader
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		form, err := c.MultipartForm()
		if err != nil {
			log.WithError(err).Warn("Failed to read multipart form")
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
			return
		}
		files = form.File["media"]
	}

	actor := principalFrom(c)
	incident, err := h.incidentService.CreateIncident(c.Request.Context(), actor, DTOToCreateIncidentInput(input, files))
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToIncidentResponse(incident, actor.ID))
}

// parseListQuery разбирает фильтры ленты. Радиус задается тройкой latitude, longitude, radius.
func parseListQuery(c *gin.Context) (models.IncidentFilter, *models.GeoRadius, string) {
	var filter models.IncidentFilter
	if v := c.Query("status"); v != "" {
		s := models.Status(v)
		filter.Status = &s
	}
	if v := c.Query("type"); v != "" {
		t := models.IncidentType(v)
		filter.Type = &t
	}
	if v := c.Query("verified"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, nil, "verified must be true or false"
		}
		filter.Verified = &b
	}

	var err error
	if filter.Page, err = strconv.Atoi(c.DefaultQuery("page", "1")); err != nil {
		return filter, nil, "page must be an integer"
	}
	if filter.PageSize, err = strconv.Atoi(c.DefaultQuery("pageSize", "20")); err != nil {
		return filter, nil, "pageSize must be an integer"
	}

	lat, lon, radius := c.Query("latitude"), c.Query("longitude"), c.Query("radius")
	if lat == "" && lon == "" && radius == "" {
		return filter, nil, ""
	}
	if lat == "" || lon == "" || radius == "" {
		return filter, nil, "latitude, longitude and radius must be given together"
	}
	near := &models.GeoRadius{}
	for _, p := range []struct {
		raw string
		dst *float64
	}{{lat, &near.Latitude}, {lon, &near.Longitude}, {radius, &near.RadiusKm}} {
		if *p.dst, err = strconv.ParseFloat(p.raw, 64); err != nil {
			return filter, nil, "latitude, longitude and radius must be numbers"
		}
	}
	return filter, near, ""
}

// @Summary List incidents
// @Description Newest first, duplicates excluded.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param status query string false "Status filter"
// @Param type query string false "Type filter"
// @Param verified query bool false "Verification filter"
// @Param latitude query number false "Center latitude"
// @Param longitude query number false "Center longitude"
// @Param radius query number false "Radius in km"
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid filter"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")
	filter, near, problem := parseListQuery(c)
	if problem != "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": problem})
		return
	}

	actor := principalFrom(c)
	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), actor, filter, near)
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents, actor.ID))
}

// @Summary Get incident by ID
// @Description Internal notes are visible to admins only.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	actor := principalFrom(c)
	incident, err := h.incidentService.GetIncident(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident, actor.ID))
}

// @Summary Toggle upvote
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} UpvoteResponse
// @Failure 400 {object} map[string]string "Own incident"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id}/upvote [post]
func (h *Handler) toggleUpvote(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "toggleUpvote").WithField("id", id)

	result, err := h.incidentService.ToggleUpvote(c.Request.Context(), principalFrom(c), id)
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, UpvoteResponse{Upvotes: result.Upvotes, IsVerified: result.IsVerified, HasUpvoted: result.HasUpvoted})
}

// @Summary Verify incident
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 403 {object} map[string]string "Admins only"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id}/verify [post]
func (h *Handler) verifyIncident(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "verifyIncident").WithField("id", id)

	actor := principalFrom(c)
	incident, err := h.incidentService.VerifyIncident(c.Request.Context(), actor, id)
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident, actor.ID))
}

// @Summary Update incident status
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param status body UpdateStatusRequest true "New status"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Unknown status"
// @Failure 403 {object} map[string]string "Admins only"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id}/status [patch]
func (h *Handler) updateStatus(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateStatus").WithField("id", id)

	var input UpdateStatusRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	actor := principalFrom(c)
	incident, err := h.incidentService.UpdateStatus(c.Request.Context(), actor, models.UpdateStatusInput{
		IncidentID: id,
		Status:     models.Status(input.Status),
	})
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident, actor.ID))
}

// @Summary Add internal note
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param note body AddNoteRequest true "Note"
// @Success 201 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Empty note"
// @Failure 403 {object} map[string]string "Admins only"
// @Failure 404 {object} map[string]string "Incident not found"
// @Router /incidents/{id}/notes [post]
func (h *Handler) addNote(c *gin.Context) {
	id, ok := parseIncidentID(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "addNote").WithField("id", id)

	var input AddNoteRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	actor := principalFrom(c)
	incident, err := h.incidentService.AddNote(c.Request.Context(), actor, models.AddNoteInput{IncidentID: id, Note: input.Note})
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, ModelToIncidentResponse(incident, actor.ID))
}

// @Summary Current user profile with points
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Success 200 {object} ProfileResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /users/me [get]
func (h *Handler) getProfile(c *gin.Context) {
	log := h.logger.WithField("method", "getProfile")

	profile, err := h.userService.GetProfile(c.Request.Context(), principalFrom(c))
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToProfileResponse(profile))
}

// @Summary Leaderboard
// @Tags Users
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Number of entries" default(5)
// @Success 200 {array} StandingResponse
// @Router /users/leaderboard [get]
func (h *Handler) leaderboard(c *gin.Context) {
	log := h.logger.WithField("method", "leaderboard")
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
		return
	}

	standings, err := h.userService.Leaderboard(c.Request.Context(), principalFrom(c), limit)
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToStandingResponses(standings))
}

// @Summary Reward catalog
// @Tags Rewards
// @Produce json
// @Security BearerAuth
// @Success 200 {array} RewardResponse
// @Router /rewards [get]
func (h *Handler) listRewards(c *gin.Context) {
	c.JSON(http.StatusOK, ModelsToRewardResponses(h.userService.ListRewards(c.Request.Context())))
}

// @Summary Redeem points for a reward
// @Tags Rewards
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param reward body RedeemRequest true "Reward title"
// @Success 200 {object} ProfileResponse
// @Failure 400 {object} map[string]string "Unknown reward"
// @Failure 409 {object} map[string]string "Not enough points or already redeemed"
// @Router /rewards/redeem [post]
func (h *Handler) redeemReward(c *gin.Context) {
	log := h.logger.WithField("method", "redeemReward")
	var input RedeemRequest
	if !h.bindJSON(c, log, &input) {
		return
	}

	profile, err := h.userService.RedeemReward(c.Request.Context(), principalFrom(c), models.RedeemInput{Title: input.Title})
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToProfileResponse(profile))
}

// @Summary Dashboard statistics
// @Description Counts for the current UTC day. Admins only.
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Success 200 {object} StatsResponse
// @Failure 403 {object} map[string]string "Admins only"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/stats [get]
func (h *Handler) getStats(c *gin.Context) {
	log := h.logger.WithField("method", "getStats")

	stats, err := h.userService.DashboardStats(c.Request.Context(), principalFrom(c))
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, StatsResponse{
		IncidentsToday:   stats.IncidentsToday,
		NeedReview:       stats.NeedReview,
		ResolvedToday:    stats.ResolvedToday,
		TotalActiveUsers: stats.TotalActiveUsers,
	})
}

// @Summary Get application health status
// @Tags System
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
