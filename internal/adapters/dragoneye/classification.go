package dragoneye

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"

	"dragoneye/internal/core/domain"
	"dragoneye/internal/decode"
	"dragoneye/internal/media"
)

const (
	classifyPath   = "/predict"
	productPath    = "/predict-product"
	screenshotPath = "/screenshots/parse"

	imageFileParam = "image_file"
	imageFileName  = "image"
)

type singleImageForm struct {
	ModelName string `schema:"model_name"`
	ImageURL  string `schema:"image_url,omitempty"`
}

type productForm struct {
	ModelName string   `schema:"model_name"`
	ImageURLs []string `schema:"image_urls,omitempty"`
}

// ClassifyImage classifies one image synchronously, outside the task lifecycle.
func (c *Client) ClassifyImage(ctx context.Context, image *media.Source, modelName string) (*domain.ImageResult, error) {
	body, err := c.postSingleImage(ctx, classifyPath, image, modelName)
	if err != nil {
		return nil, fmt.Errorf("error during classification request: %w", err)
	}
	return decode.Image(body)
}

// ParseScreenshot detects UI elements in a screenshot.
func (c *Client) ParseScreenshot(ctx context.Context, image *media.Source, modelName string) (*domain.ScreenshotResult, error) {
	body, err := c.postSingleImage(ctx, screenshotPath, image, modelName)
	if err != nil {
		return nil, fmt.Errorf("error during screenshot parse request: %w", err)
	}
	return decode.Screenshot(body)
}

// ClassifyProduct classifies a product shown across several images. The
// images must be all embedded or all URLs.
func (c *Client) ClassifyProduct(ctx context.Context, images []*media.Source, modelName string) (*domain.ProductResult, error) {
	if err := media.CheckHomogeneous(images); err != nil {
		return nil, err
	}
	if modelName == "" {
		return nil, fmt.Errorf("%w: model name is required", domain.ErrUsage)
	}

	form := productForm{ModelName: modelName}
	req := c.api.R().SetContext(ctx)
	for _, image := range images {
		if !image.Embedded() {
			form.ImageURLs = append(form.ImageURLs, image.URL())
			continue
		}
		r, mimeType, err := image.Open(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		req.SetMultipartField(imageFileParam, imageFileName, partContentType(mimeType), r)
	}

	values, err := encodeForm(form)
	if err != nil {
		return nil, err
	}
	res, err := req.SetFormDataFromValues(values).Post(productPath)
	if err := requestErr(res, err); err != nil {
		return nil, fmt.Errorf("error during product classification request: %w", err)
	}
	return decode.Product(res.Body())
}

func (c *Client) postSingleImage(ctx context.Context, endpoint string, image *media.Source, modelName string) ([]byte, error) {
	if image == nil {
		return nil, fmt.Errorf("%w: either image bytes or image url must be specified", domain.ErrUsage)
	}
	if modelName == "" {
		return nil, fmt.Errorf("%w: model name is required", domain.ErrUsage)
	}

	form := singleImageForm{ModelName: modelName}
	req := c.api.R().SetContext(ctx)
	if image.Embedded() {
		r, mimeType, err := image.Open(ctx, nil)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		req.SetMultipartField(imageFileParam, imageFileName, partContentType(mimeType), r)
	} else {
		form.ImageURL = image.URL()
	}

	values, err := encodeForm(form)
	if err != nil {
		return nil, err
	}
	res, err := req.SetFormDataFromValues(values).Post(endpoint)
	if err := requestErr(res, err); err != nil {
		return nil, err
	}
	return res.Body(), nil
}

func requestErr(res *resty.Response, err error) error {
	if err != nil {
		return err
	}
	if !res.IsSuccess() {
		return newHTTPError(res)
	}
	return nil
}

func partContentType(mimeType string) string {
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
