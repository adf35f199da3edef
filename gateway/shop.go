package gateway

import (
	"net/http"

	"github.com/example/storefront/pkg/models"
	"github.com/example/storefront/pkg/service"
	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type productRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description string  `json:"description"`
	ImageURL    string  `json:"image_url"`
	Price       float64 `json:"price"`
	CategoryID  string  `json:"category_id"`
}

func (r productRequest) product(id string) *models.Product {
	return &models.Product{
		ID:          id,
		Name:        r.Name,
		Description: r.Description,
		ImageURL:    r.ImageURL,
		Price:       r.Price,
		CategoryID:  r.CategoryID,
	}
}

type categoryRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type cartItemRequest struct {
	ProductID string `json:"product_id" binding:"required"`
	Quantity  int    `json:"quantity"`
}

type quantityRequest struct {
	Quantity int `json:"quantity"`
}

func (g *Gateway) register(c *gin.Context) {
	var req service.RegisterInput
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	res, err := g.svc.Auth.Register(c.Request.Context(), req)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, res)
}

func (g *Gateway) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	res, err := g.svc.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) forgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	res, err := g.svc.Auth.RequestPasswordReset(c.Request.Context(), req.Email)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (g *Gateway) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	if err := g.svc.Auth.ResetPassword(c.Request.Context(), req.Token, req.NewPassword); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password has been reset"})
}

func (g *Gateway) me(c *gin.Context) {
	user, err := g.svc.Auth.Profile(c.Request.Context(), identity(c).Email)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (g *Gateway) updateMe(c *gin.Context) {
	var req service.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	user, err := g.svc.Auth.UpdateProfile(c.Request.Context(), identity(c).Email, req)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// listProducts serves the catalog, a search (?q=) or a category (?category=).
func (g *Gateway) listProducts(c *gin.Context) {
	var (
		products []models.Product
		err      error
	)
	switch {
	case c.Query("q") != "":
		products, err = g.svc.Products.SearchProducts(c.Request.Context(), c.Query("q"))
	case c.Query("category") != "":
		products, err = g.svc.Products.ListByCategory(c.Request.Context(), c.Query("category"))
	default:
		products, err = g.svc.Products.ListProducts(c.Request.Context())
	}
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": products, "total": len(products)})
}

func (g *Gateway) getProduct(c *gin.Context) {
	product, err := g.svc.Products.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (g *Gateway) createProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	product := req.product("")
	if err := g.svc.Products.CreateProduct(c.Request.Context(), product); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, product)
}

func (g *Gateway) updateProduct(c *gin.Context) {
	var req productRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	product := req.product(c.Param("id"))
	if err := g.svc.Products.UpdateProduct(c.Request.Context(), product); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, product)
}

func (g *Gateway) listCategories(c *gin.Context) {
	categories, err := g.svc.Products.ListCategories(c.Request.Context())
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, categories)
}

func (g *Gateway) listCategoryProducts(c *gin.Context) {
	products, err := g.svc.Products.ListByCategory(c.Request.Context(), c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (g *Gateway) createCategory(c *gin.Context) {
	var req categoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	category := &models.Category{Name: req.Name, Description: req.Description}
	if err := g.svc.Products.CreateCategory(c.Request.Context(), category); err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, category)
}

func (g *Gateway) getCart(c *gin.Context) {
	view, err := g.svc.Carts.GetCart(c.Request.Context(), identity(c).Email)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (g *Gateway) clearCart(c *gin.Context) {
	view, err := g.svc.Carts.Clear(c.Request.Context(), identity(c).Email)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (g *Gateway) addCartItem(c *gin.Context) {
	var req cartItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	view, err := g.svc.Carts.AddItem(c.Request.Context(), identity(c).Email, req.ProductID, req.Quantity)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (g *Gateway) updateCartItem(c *gin.Context) {
	var req quantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		g.fail(c, badRequest(err))
		return
	}
	view, err := g.svc.Carts.UpdateItem(c.Request.Context(), identity(c).Email, c.Param("id"), req.Quantity)
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (g *Gateway) removeCartItem(c *gin.Context) {
	view, err := g.svc.Carts.RemoveItem(c.Request.Context(), identity(c).Email, c.Param("id"))
	if err != nil {
		g.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
