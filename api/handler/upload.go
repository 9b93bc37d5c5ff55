package handler

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/fyerfyer/pdf-splitter/api/middleware"
	"github.com/gin-gonic/gin"
)

// readUpload 读取上传文件的全部内容，超过 limit 字节时返回413错误
func readUpload(fh *multipart.FileHeader, limit int64) ([]byte, error) {
	if fh == nil {
		return nil, nil
	}
	if limit > 0 && fh.Size > limit {
		return nil, middleware.NewTooLargeError(fmt.Sprintf("%s exceeds the upload limit of %d MB", fh.Filename, limit>>20))
	}

	file, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open uploaded file %s: %w", fh.Filename, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read uploaded file %s: %w", fh.Filename, err)
	}
	return data, nil
}

// bindForm 绑定表单参数，请求体超出上限时返回413错误
func bindForm(c *gin.Context, req interface{}) error {
	if err := c.ShouldBind(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return middleware.NewTooLargeError(fmt.Sprintf("request body exceeds %d MB", tooLarge.Limit>>20))
		}
		return middleware.NewValidationError("invalid request parameters", err.Error())
	}
	return nil
}

func fileName(fh *multipart.FileHeader) string {
	if fh == nil {
		return ""
	}
	return fh.Filename
}

// attachment 以附件形式返回压缩包
func attachment(c *gin.Context, name string, data []byte) {
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	c.Data(http.StatusOK, "application/zip", data)
}
