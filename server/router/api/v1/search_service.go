package v1

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/plaza/server/service/search"
)

func (s *APIV1Service) Search(c echo.Context) error {
	query := search.Query{
		Q:      c.QueryParam("q"),
		Types:  search.ParseTypes(c.QueryParam("types")),
		Filter: c.QueryParam("filter"),
	}
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return badRequest("Invalid limit")
		}
		query.Limit = limit
	}
	resp, err := s.SearchService.Search(c.Request().Context(), query)
	if err != nil {
		return err
	}
	return ok(c, resp)
}
