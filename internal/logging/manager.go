package logging

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownComponent компонент ещё не запрашивал логгер
var ErrUnknownComponent = errors.New("logging: unknown component")

// componentSet хранит по одному логгеру на компонент (world, mesh, scheduler, ...).
// Уровень из InitDefaultLogger применяется и к уже выданным логгерам.
type componentSet struct {
	mu      sync.Mutex
	loggers map[string]*Logger
}

var components = &componentSet{loggers: make(map[string]*Logger)}

func (s *componentSet) get(name string) *Logger {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.loggers[name]; ok {
		return l
	}
	l, err := NewLogger(name)
	if err != nil {
		// каталог логов недоступен: пишем только в консоль
		current().Warn("Логгер %s без файла: %v", name, err)
		defaultMu.RLock()
		level := defaultOptions.Level
		defaultMu.RUnlock()
		l = newConsoleLogger(name, current().consoleLogger.Writer(), level)
	}
	s.loggers[name] = l
	return l
}

func (s *componentSet) setLevel(level LogLevel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.loggers {
		l.SetLevel(level)
	}
}

// GetComponentLogger возвращает общий логгер компонента, создавая его при первом обращении
func GetComponentLogger(component string) *Logger {
	return components.get(component)
}

func GetWorldLogger() *Logger     { return GetComponentLogger("world") }
func GetMeshLogger() *Logger      { return GetComponentLogger("mesh") }
func GetSchedulerLogger() *Logger { return GetComponentLogger("scheduler") }
func GetServerLogger() *Logger    { return GetComponentLogger("server") }

// SetComponentLevel меняет уровень консоли одного компонента
func SetComponentLevel(component string, level LogLevel) error {
	components.mu.Lock()
	l, ok := components.loggers[component]
	components.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, component)
	}
	l.SetLevel(level)
	return nil
}

// Components список компонентов с выданными логгерами, по алфавиту
func Components() []string {
	components.mu.Lock()
	defer components.mu.Unlock()

	names := make([]string, 0, len(components.loggers))
	for name := range components.loggers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CloseComponents закрывает файлы всех логгеров компонентов и забывает их
func CloseComponents() error {
	components.mu.Lock()
	defer components.mu.Unlock()

	var errs []error
	for name, l := range components.loggers {
		if err := l.Close(); err != nil {
			errs = append(errs, fmt.Errorf("закрытие логгера %s: %w", name, err))
		}
	}
	components.loggers = make(map[string]*Logger)
	return errors.Join(errs...)
}
