// Package render описывает границу с внешним рендером: ядро отдаёт геометрию
// меша, получает взамен непрозрачный Handle и позже освобождает его.
package render

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Handle непрозрачный идентификатор установленного в рендер объекта.
// Нулевое значение означает отсутствие меша.
type Handle uuid.UUID

// NilHandle отсутствующий меш
var NilHandle = Handle(uuid.Nil)

// IsZero сообщает, что handle не указывает ни на какой объект
func (h Handle) IsZero() bool {
	return h == NilHandle
}

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// Color RGBA цвет
type Color struct {
	R, G, B, A float32
}

// Material разрешённый материал примитива
type Material struct {
	Name  string
	Color Color
}

var (
	// Green материал твёрдого вокселя
	Green = Material{Name: "green", Color: Color{R: 0, G: 1, B: 0, A: 1}}
	// Red материал пустого вокселя (наивный мешер его не выпускает)
	Red = Material{Name: "red", Color: Color{R: 1, G: 0, B: 0, A: 1}}
)

// Mesh геометрия, которую рендер принимает на установку
type Mesh interface {
	VertexCount() int
	PrimitiveCount() int
	Encode() []byte
}

// Pool внешний пул ресурсов рендера
type Pool interface {
	// Install устанавливает меш и возвращает его handle
	Install(ctx context.Context, m Mesh) (Handle, error)
	// Release освобождает ранее установленный меш. Нулевой handle игнорируется.
	Release(ctx context.Context, h Handle) error
	// Ready сообщает, доступна ли цель рендера в текущем тике
	Ready() bool
}

// Releaser часть пула, нужная для выгрузки чанков
type Releaser interface {
	Release(ctx context.Context, h Handle) error
}

var (
	ErrUnknownHandle = errors.New("unknown render handle")
	ErrNotReady      = errors.New("render target not ready")
)
