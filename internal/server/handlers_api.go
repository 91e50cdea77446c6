package server

import (
	"fmt"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/ordertrack/internal/domain"
	apperrors "github.com/pscheid92/ordertrack/internal/errors"
	"github.com/pscheid92/ordertrack/internal/registry"
)

type createOrderRequest struct {
	OrderID            string           `json:"order_id"`
	RestaurantLocation *domain.Location `json:"restaurant_location"`
	CustomerLocation   *domain.Location `json:"customer_location"`
}

type updateStatusRequest struct {
	Status                string                  `json:"status"`
	Metadata              map[string]string       `json:"metadata"`
	EstimatedDeliveryTime *time.Time              `json:"estimated_delivery_time"`
	DeliveryPartner       *domain.DeliveryPartner `json:"delivery_partner"`
}

type updateLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (s *Server) handleCreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("malformed request body")
	}
	if req.OrderID == "" {
		return apperrors.ValidationError("order_id is required")
	}
	if err := validateLocation(req.RestaurantLocation, "restaurant_location"); err != nil {
		return err
	}
	if err := validateLocation(req.CustomerLocation, "customer_location"); err != nil {
		return err
	}

	record, err := s.registry.Create(c.Request().Context(), req.OrderID, req.RestaurantLocation, req.CustomerLocation)
	if err != nil {
		return err
	}

	if err := c.JSON(201, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleGetOrder(c echo.Context) error {
	record, err := s.registry.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	if err := c.JSON(200, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleUpdateStatus(c echo.Context) error {
	var req updateStatusRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("malformed request body")
	}
	if req.Status == "" {
		return apperrors.ValidationError("status is required")
	}

	update := registry.StatusUpdate{
		Status:                domain.Status(req.Status),
		Metadata:              req.Metadata,
		EstimatedDeliveryTime: req.EstimatedDeliveryTime,
		DeliveryPartner:       req.DeliveryPartner,
	}
	record, err := s.registry.UpdateStatus(c.Request().Context(), c.Param("id"), update)
	if err != nil {
		return err
	}

	if err := c.JSON(200, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func (s *Server) handleUpdateLocation(c echo.Context) error {
	var req updateLocationRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("malformed request body")
	}
	location := domain.Location{Lat: req.Lat, Lng: req.Lng}
	if err := validateLocation(&location, "location"); err != nil {
		return err
	}

	record, err := s.registry.UpdatePartnerLocation(c.Request().Context(), c.Param("id"), location)
	if err != nil {
		return err
	}

	if err := c.JSON(200, record); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}

func validateLocation(loc *domain.Location, field string) error {
	if loc == nil {
		return nil
	}
	if loc.Lat < -90 || loc.Lat > 90 || loc.Lng < -180 || loc.Lng > 180 {
		return apperrors.ValidationError("coordinates out of range").
			WithContext("field", field).
			WithContext("lat", loc.Lat).
			WithContext("lng", loc.Lng)
	}
	return nil
}
