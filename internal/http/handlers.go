package http

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/fyrsmithlabs/vectorstored/internal/errdefs"
	"github.com/fyrsmithlabs/vectorstored/internal/metadata"
	"github.com/fyrsmithlabs/vectorstored/internal/service"
)

func bindList(c echo.Context) (metadata.ListParams, error) {
	var p metadata.ListParams
	err := echo.QueryParamsBinder(c).
		Int("limit", &p.Limit).
		String("after", &p.After).
		String("before", &p.Before).
		String("order", &p.Order).
		BindError()
	if err != nil {
		return p, badRequest(err)
	}
	return p, nil
}

func listResponse[T any](page metadata.Page[T]) ListResponse[T] {
	data := page.Data
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{
		Object:  "list",
		Data:    data,
		FirstID: page.FirstID,
		LastID:  page.LastID,
		HasMore: page.HasMore,
	}
}

func (s *Server) handleCreateVectorStore(c echo.Context) error {
	var req service.CreateVectorStoreRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	vs, err := s.svc.CreateVectorStore(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, vs)
}

func (s *Server) handleListVectorStores(c echo.Context) error {
	params, err := bindList(c)
	if err != nil {
		return err
	}
	page, err := s.svc.ListVectorStores(c.Request().Context(), params)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse(page))
}

func (s *Server) handleGetVectorStore(c echo.Context) error {
	vs, err := s.svc.GetVectorStore(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, vs)
}

func (s *Server) handleModifyVectorStore(c echo.Context) error {
	var req service.ModifyVectorStoreRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	vs, err := s.svc.ModifyVectorStore(c.Request().Context(), c.Param("id"), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, vs)
}

func (s *Server) handleDeleteVectorStore(c echo.Context) error {
	id := c.Param("id")
	if err := s.svc.DeleteVectorStore(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DeletedResponse{ID: id, Object: "vector_store.deleted", Deleted: true})
}

func (s *Server) handleSearch(c echo.Context) error {
	var req SearchRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	results, err := s.svc.Search(c.Request().Context(), c.Param("id"), req.Query, req.TopK)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, SearchResponse{
		Object:      "vector_store.search_results.page",
		SearchQuery: req.Query,
		Data:        results,
	})
}

func (s *Server) handleCreateVectorStoreFile(c echo.Context) error {
	var req CreateVectorStoreFileRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	if req.FileID == "" {
		return errdefs.Configuration("file_id is required")
	}
	f, err := s.svc.AttachFile(c.Request().Context(), c.Param("id"), req.FileID, req.ChunkingStrategy)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) handleListVectorStoreFiles(c echo.Context) error {
	params, err := bindList(c)
	if err != nil {
		return err
	}
	status := metadata.FileStatus(c.QueryParam("filter"))
	page, err := s.svc.ListFiles(c.Request().Context(), c.Param("id"), params, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse(page))
}

func (s *Server) handleGetVectorStoreFile(c echo.Context) error {
	f, err := s.svc.GetFile(c.Request().Context(), c.Param("id"), c.Param("file_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) handleDeleteVectorStoreFile(c echo.Context) error {
	fileID := c.Param("file_id")
	if err := s.svc.DeleteFile(c.Request().Context(), c.Param("id"), fileID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DeletedResponse{ID: fileID, Object: "vector_store.file.deleted", Deleted: true})
}

func (s *Server) handleCancelVectorStoreFile(c echo.Context) error {
	f, err := s.svc.CancelFile(c.Request().Context(), c.Param("id"), c.Param("file_id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) handleUploadFile(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return errdefs.Configuration("multipart field \"file\" is required")
	}
	src, err := fh.Open()
	if err != nil {
		return errdefs.Wrap(errdefs.CodeConfiguration, err, "reading upload")
	}
	defer src.Close()

	f, err := s.svc.Upload(c.Request().Context(), service.UploadRequest{
		Filename: fh.Filename,
		Purpose:  c.FormValue("purpose"),
		Body:     src,
		Size:     fh.Size,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) handleListFiles(c echo.Context) error {
	params, err := bindList(c)
	if err != nil {
		return err
	}
	page, err := s.svc.ListObjects(c.Request().Context(), params, c.QueryParam("purpose"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listResponse(page))
}

func (s *Server) handleGetFile(c echo.Context) error {
	f, err := s.svc.GetObject(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, f)
}

func (s *Server) handleFileContent(c echo.Context) error {
	rc, _, err := s.svc.Content(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentType, echo.MIMEOctetStream)
	c.Response().WriteHeader(http.StatusOK)
	_, err = io.Copy(c.Response(), rc)
	return err
}

func (s *Server) handleDeleteFile(c echo.Context) error {
	id := c.Param("id")
	if err := s.svc.DeleteObject(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, DeletedResponse{ID: id, Object: metadata.ObjectFile, Deleted: true})
}

func (s *Server) handleEmbeddings(c echo.Context) error {
	var req EmbeddingsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(err)
	}
	resp, err := s.svc.Embed(c.Request().Context(), service.EmbeddingRequest{
		Input:          req.Input,
		Model:          req.Model,
		EncodingFormat: req.EncodingFormat,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, resp)
}
