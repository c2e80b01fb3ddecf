package v1

import (
	"io"
	"mime/multipart"

	"github.com/google/uuid"
	"github.com/shenikar/incident_reporting_system/internal/models"
)

// DTOToCreateIncidentInput преобразует DTO создания в вход сервиса
func DTOToCreateIncidentInput(dto CreateIncidentRequest, files []*multipart.FileHeader) models.CreateIncidentInput {
	in := models.CreateIncidentInput{
		Title:       dto.Title,
		Description: dto.Description,
		Type:        models.IncidentType(dto.Type),
		Severity:    models.Severity(dto.Severity),
		Location:    dto.Location,
	}
	if dto.Latitude != nil {
		in.Latitude = *dto.Latitude
	}
	if dto.Longitude != nil {
		in.Longitude = *dto.Longitude
	}
	for _, fh := range files {
		in.Media = append(in.Media, fileHeaderToUpload(fh))
	}
	return in
}

func fileHeaderToUpload(fh *multipart.FileHeader) models.MediaUpload {
	return models.MediaUpload{
		Filename:    fh.Filename,
		Size:        fh.Size,
		ContentType: fh.Header.Get("Content-Type"),
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа.
// viewer нужен для признака hasUpvoted.
func ModelToIncidentResponse(model *models.Incident, viewer uuid.UUID) *IncidentResponse {
	notes := make([]NoteResponse, len(model.InternalNotes))
	for i, n := range model.InternalNotes {
		notes[i] = NoteResponse{Note: n.Note, AddedBy: n.AddedBy, AddedAt: n.AddedAt}
	}
	media := model.MediaURLs
	if media == nil {
		media = []string{}
	}
	merged := model.MergedIncidents
	if merged == nil {
		merged = []uuid.UUID{}
	}
	var method *string
	if model.VerificationMethod != "" {
		m := string(model.VerificationMethod)
		method = &m
	}
	return &IncidentResponse{
		ID:                 model.ID,
		IncidentID:         model.IncidentID,
		Title:              model.Title,
		Description:        model.Description,
		Type:               string(model.Type),
		Severity:           string(model.Severity),
		Latitude:           model.Latitude,
		Longitude:          model.Longitude,
		Location:           model.Location,
		MediaURLs:          media,
		UserID:             model.UserID,
		Status:             string(model.Status),
		IsVerified:         model.IsVerified,
		VerificationMethod: method,
		VerifiedBy:         model.VerifiedBy,
		VerifiedAt:         model.VerifiedAt,
		DuplicateOf:        model.DuplicateOf,
		MergedIncidents:    merged,
		Upvotes:            len(model.Upvotes),
		HasUpvoted:         model.HasUpvote(viewer),
		InternalNotes:      notes,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(incidents []*models.Incident, viewer uuid.UUID) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(incidents))
	for i, model := range incidents {
		responses[i] = ModelToIncidentResponse(model, viewer)
	}
	return responses
}

func ModelToUserResponse(u *models.User) *UserResponse {
	if u == nil {
		return nil
	}
	return &UserResponse{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		City:      u.City,
		CreatedAt: u.CreatedAt,
	}
}

func ModelToProfileResponse(p *models.Profile) *ProfileResponse {
	ledger := make([]RedeemedRewardResponse, len(p.RedeemedRewards))
	for i, r := range p.RedeemedRewards {
		ledger[i] = RedeemedRewardResponse{Title: r.Title, Description: r.Description, Points: r.Points, RedeemedAt: r.RedeemedAt}
	}
	return &ProfileResponse{
		User:             ModelToUserResponse(p.User),
		TotalPoints:      p.Score.TotalPoints,
		MonthlyPoints:    p.Score.MonthlyPoints,
		PointsRemaining:  p.Score.PointsRemaining,
		Rank:             p.Score.Rank,
		TotalUsers:       p.Score.TotalUsers,
		ReportsThisMonth: p.Score.ReportsThisMonth,
		RedeemedRewards:  ledger,
	}
}

func ModelsToStandingResponses(standings []models.Standing) []StandingResponse {
	out := make([]StandingResponse, len(standings))
	for i, s := range standings {
		out[i] = StandingResponse{
			UserID:           s.UserID,
			Name:             s.Name,
			Points:           s.Points,
			MonthlyPoints:    s.MonthlyPoints,
			ReportsThisMonth: s.ReportsThisMonth,
			Rank:             s.Rank,
		}
	}
	return out
}

func ModelsToRewardResponses(rewards []models.Reward) []RewardResponse {
	out := make([]RewardResponse, len(rewards))
	for i, r := range rewards {
		out[i] = RewardResponse{Title: r.Title, Description: r.Description, Points: r.Points}
	}
	return out
}
