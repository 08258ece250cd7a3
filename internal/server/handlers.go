package server

import (
	"bloodsync/internal/core"
	"bloodsync/pkg/domain"
	"net/http"

	"github.com/gin-gonic/gin"
)

type donationBody struct {
	Units  *int   `json:"units"`
	Center string `json:"center"`
	Notes  string `json:"notes"`
}

type acceptBody struct {
	UnitsOffered int    `json:"units_offered"`
	Notes        string `json:"notes"`
}

type completeBody struct {
	UnitsDonated *int   `json:"units_donated"`
	Center       string `json:"center"`
}

type withdrawBody struct {
	Units int `json:"units" binding:"required"`
}

type adjustBody struct {
	BloodGroup domain.BloodGroup    `json:"blood_group" binding:"required"`
	Units      int                  `json:"units"`
	Direction  core.AdjustDirection `json:"direction"`
}

// bindOptional decodes a JSON body when one was sent.
func bindOptional(c *gin.Context, v any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

func bindRequired(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		badRequest(c, err)
		return false
	}
	return true
}

func respond[T any](c *gin.Context, status int, v T, err error) {
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(status, v)
}

func (s *Server) statistics(c *gin.Context) {
	stats, err := s.svc.Statistics(c.Request.Context())
	respond(c, http.StatusOK, stats, err)
}

func (s *Server) listDonors(c *gin.Context) {
	donors, err := s.svc.ListDonors(c.Request.Context())
	respond(c, http.StatusOK, gin.H{"donors": donors}, err)
}

func (s *Server) registerDonor(c *gin.Context) {
	var in domain.Donor
	if !bindRequired(c, &in) {
		return
	}
	donor, err := s.svc.RegisterDonor(c.Request.Context(), in)
	respond(c, http.StatusCreated, donor, err)
}

func (s *Server) searchDonors(c *gin.Context) {
	group := domain.BloodGroup(c.Query("blood_group"))
	donors, err := s.svc.SearchDonors(c.Request.Context(), group, c.Query("location"))
	respond(c, http.StatusOK, gin.H{"donors": donors}, err)
}

func (s *Server) getDonor(c *gin.Context) {
	donor, err := s.svc.GetDonor(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, donor, err)
}

func (s *Server) updateDonor(c *gin.Context) {
	var in core.DonorProfileUpdate
	if !bindRequired(c, &in) {
		return
	}
	donor, err := s.svc.UpdateDonorProfile(c.Request.Context(), c.Param("id"), in)
	respond(c, http.StatusOK, donor, err)
}

func (s *Server) donorDashboard(c *gin.Context) {
	dash, err := s.svc.DonorDashboard(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, dash, err)
}

func (s *Server) availableRequests(c *gin.Context) {
	reqs, err := s.svc.FindAvailableRequestsForDonor(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, gin.H{"requests": reqs}, err)
}

func (s *Server) recordDonation(c *gin.Context) {
	var in donationBody
	if !bindOptional(c, &in) {
		return
	}
	donation, err := s.svc.RecordDonation(c.Request.Context(), c.Param("id"), core.DonationInput{
		Units:  in.Units,
		Center: in.Center,
		Notes:  in.Notes,
	})
	respond(c, http.StatusCreated, donation, err)
}

func (s *Server) acceptRequest(c *gin.Context) {
	var in acceptBody
	if !bindOptional(c, &in) {
		return
	}
	assignment, err := s.svc.AcceptRequest(c.Request.Context(), c.Param("id"), c.Param("requestID"), core.AcceptInput{
		UnitsOffered: in.UnitsOffered,
		Notes:        in.Notes,
	})
	respond(c, http.StatusCreated, assignment, err)
}

func (s *Server) completeAssignment(c *gin.Context) {
	var in completeBody
	if !bindOptional(c, &in) {
		return
	}
	result, err := s.svc.ConfirmDonation(c.Request.Context(), c.Param("id"), core.CompletionInput{
		UnitsDonated: in.UnitsDonated,
		Center:       in.Center,
	})
	respond(c, http.StatusOK, result, err)
}

func (s *Server) registerRequestor(c *gin.Context) {
	var in domain.Requestor
	if !bindRequired(c, &in) {
		return
	}
	requestor, err := s.svc.RegisterRequestor(c.Request.Context(), in)
	respond(c, http.StatusCreated, requestor, err)
}

func (s *Server) getRequestor(c *gin.Context) {
	requestor, err := s.svc.GetRequestor(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, requestor, err)
}

func (s *Server) requestorDashboard(c *gin.Context) {
	dash, err := s.svc.RequestorDashboard(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, dash, err)
}

func (s *Server) listRequests(c *gin.Context) {
	reqs, err := s.svc.ListRequests(c.Request.Context())
	respond(c, http.StatusOK, gin.H{"requests": reqs}, err)
}

func (s *Server) submitRequest(c *gin.Context) {
	var in domain.BloodRequest
	if !bindRequired(c, &in) {
		return
	}
	req, err := s.svc.SubmitRequest(c.Request.Context(), in)
	respond(c, http.StatusCreated, req, err)
}

func (s *Server) requestDetails(c *gin.Context) {
	details, err := s.svc.RequestDetails(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, details, err)
}

func (s *Server) matchRequest(c *gin.Context) {
	match, err := s.svc.MatchRequest(c.Request.Context(), c.Param("id"))
	respond(c, http.StatusOK, match, err)
}

func (s *Server) withdraw(c *gin.Context) {
	var in withdrawBody
	if !bindRequired(c, &in) {
		return
	}
	result, err := s.svc.WithdrawFromInventory(c.Request.Context(), c.Param("id"), in.Units)
	respond(c, http.StatusOK, result, err)
}

func (s *Server) confirmAssignment(c *gin.Context) {
	assignment, err := s.svc.ConfirmAssignment(c.Request.Context(), c.Param("id"), c.Param("assignmentID"))
	respond(c, http.StatusOK, assignment, err)
}

func (s *Server) listInventory(c *gin.Context) {
	entries, err := s.svc.ListInventory(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	critical, err := s.svc.CriticalGroups(c.Request.Context())
	respond(c, http.StatusOK, gin.H{"inventory": entries, "critical_groups": critical}, err)
}

func (s *Server) adjustInventory(c *gin.Context) {
	var in adjustBody
	if !bindRequired(c, &in) {
		return
	}
	if in.Direction == "" {
		in.Direction = core.AdjustAdd
	}
	entry, err := s.svc.AdjustInventory(c.Request.Context(), in.BloodGroup, in.Units, in.Direction)
	respond(c, http.StatusOK, entry, err)
}

func (s *Server) exportLedger(c *gin.Context) {
	export, err := s.svc.ExportLedger(c.Request.Context())
	respond(c, http.StatusCreated, export, err)
}
