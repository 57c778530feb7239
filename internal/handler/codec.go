package handler

import (
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/shop-api/internal/domain/cart"
	"github.com/xenking/shop-api/internal/domain/discount"
	"github.com/xenking/shop-api/internal/domain/product"
)

const maxBodySize = 1 << 20

var errRequired = errors.New("required")

// requestError is a malformed request, reported as 400.
type requestError struct {
	Field string
	Err   error
}

func (e *requestError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return e.Field + ": " + e.Err.Error()
}

func (e *requestError) Unwrap() error { return e.Err }

// decodeObject reads a JSON object body and calls field for each key. A
// decoding error inside field is attributed to that key.
func decodeObject(w http.ResponseWriter, r *http.Request, field func(d *jx.Decoder, key string) error) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return &requestError{Field: "body", Err: err}
	}
	d := jx.DecodeBytes(body)
	if d.Next() != jx.Object {
		return &requestError{Field: "body", Err: errors.New("expected JSON object")}
	}
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		k := string(key)
		if err := field(d, k); err != nil {
			var re *requestError
			if errors.As(err, &re) {
				return err
			}
			return &requestError{Field: k, Err: err}
		}
		return nil
	})
}

func decodeOptInt64(d *jx.Decoder) (*int64, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func decodeOptInt(d *jx.Decoder) (*int, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	v, err := d.Int()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// decodeDecimal accepts both "12.50" and 12.50.
func decodeDecimal(d *jx.Decoder) (decimal.Decimal, error) {
	var raw string
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return decimal.Zero, err
		}
		raw = s
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return decimal.Zero, err
		}
		raw = n.String()
	default:
		return decimal.Zero, errors.New("expected decimal")
	}
	return decimal.NewFromString(raw)
}

func decodeTime(d *jx.Decoder) (time.Time, error) {
	s, err := d.Str()
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, s)
}

func pathInt64(vars map[string]string, name string) (int64, error) {
	v, err := strconv.ParseInt(vars[name], 10, 64)
	if err != nil || v <= 0 {
		return 0, &requestError{Field: name, Err: errors.New("must be a positive integer")}
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// Money is rounded to cents only here, on the way out.
func encodeMoney(e *jx.Encoder, v decimal.Decimal) {
	e.Str(v.StringFixed(2))
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(p.ID)
	e.FieldStart("title")
	e.Str(p.Title)
	e.FieldStart("slug")
	e.Str(p.Slug)
	e.FieldStart("price")
	encodeMoney(e, p.Price)
	e.FieldStart("created_at")
	encodeTime(e, p.CreatedAt)
	e.ObjEnd()
}

func encodeCart(e *jx.Encoder, v *cart.View) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(v.Cart.ID)
	e.FieldStart("user")
	e.Int64(v.Cart.UserID)

	e.FieldStart("items")
	e.ArrStart()
	for _, it := range v.Items {
		e.ObjStart()
		e.FieldStart("product_id")
		e.Int64(it.ProductID)
		e.FieldStart("title")
		e.Str(it.Title)
		e.FieldStart("price")
		encodeMoney(e, it.Price)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("line_total")
		encodeMoney(e, it.LineTotal())
		e.ObjEnd()
	}
	e.ArrEnd()

	e.FieldStart("subtotal")
	encodeMoney(e, v.Totals.Subtotal)
	e.FieldStart("discount_amount")
	encodeMoney(e, v.Totals.Discount)
	e.FieldStart("total")
	encodeMoney(e, v.Totals.Total)

	e.FieldStart("discount")
	if v.Discount == nil {
		e.Null()
	} else {
		e.ObjStart()
		e.FieldStart("code")
		e.Str(v.Discount.Code)
		e.FieldStart("title")
		e.Str(v.Discount.Title)
		e.FieldStart("discount_type")
		e.Str(string(v.Discount.Type))
		e.FieldStart("discount_value")
		encodeMoney(e, v.Discount.Value)
		e.ObjEnd()
	}

	e.FieldStart("created_at")
	encodeTime(e, v.Cart.CreatedAt)
	e.FieldStart("updated_at")
	encodeTime(e, v.Cart.UpdatedAt)
	e.ObjEnd()
}

// encodeCode writes the admin view of a code. expires_in is only written
// when st is known.
func encodeCode(e *jx.Encoder, c *discount.Code, st *discount.Status) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(c.ID)
	e.FieldStart("title")
	e.Str(c.Title)
	e.FieldStart("code")
	e.Str(c.Code)
	e.FieldStart("discount_type")
	e.Str(string(c.Type))
	e.FieldStart("discount_value")
	encodeMoney(e, c.Value)
	e.FieldStart("created_at")
	encodeTime(e, c.CreatedAt)
	e.FieldStart("expired_at")
	encodeTime(e, c.ExpiredAt)
	e.FieldStart("is_active")
	e.Bool(c.IsActive)
	e.FieldStart("can_uses")
	e.Int(c.CanUses)
	e.FieldStart("use_count")
	e.Int(c.UseCount)
	if st != nil {
		e.FieldStart("expires_in")
		e.Int64(int64(st.Remaining / time.Second))
	}
	e.ObjEnd()
}
