package handler

import "talentflow/internal/notification/models"

type ListResponse struct {
	Notifications []*models.Notification `json:"notifications"`
	Count         int                    `json:"count"`
}

type ReadAllResponse struct {
	Updated int `json:"updated"`
}
